// Package handlers is the HTTP command surface. Reads go straight to the store;
// writes are handed to the scheduler so they run on the single writer, and joins
// only enqueue an admission message.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"pickup/internal/admission"
	"pickup/internal/auth"
	"pickup/internal/game"
	"pickup/internal/models"
	"pickup/internal/response"
	"pickup/internal/rotation"
	"pickup/internal/tasks"
	"pickup/internal/vote"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Scheduler runs writes on the scheduler thread and wakes its loops early.
type Scheduler interface {
	Submit(ctx context.Context, fn tasks.TickFunc) error
	Trigger(name string) bool
}

type Handler struct {
	db        *gorm.DB
	channel   admission.Channel
	scheduler Scheduler
	games     *game.Service
	votes     *vote.Service
	rotation  *rotation.Controller
	log       *slog.Logger
}

func New(db *gorm.DB, channel admission.Channel, scheduler Scheduler, games *game.Service, votes *vote.Service, rot *rotation.Controller, log *slog.Logger) *Handler {
	return &Handler{
		db:        db,
		channel:   channel,
		scheduler: scheduler,
		games:     games,
		votes:     votes,
		rotation:  rot,
		log:       log,
	}
}

// Register mounts the API. authMW guards everything under /api.
func (h *Handler) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api", authMW, h.Activity)
	{
		api.POST("/activity", h.RecordActivityHandler)

		api.GET("/queues", h.GetQueuesHandler)
		api.POST("/queues/join", h.JoinQueuesHandler)
		api.POST("/queues/leave", h.LeaveQueueHandler)
		api.POST("/queues/:id/leave", h.LeaveQueueHandler)

		api.GET("/maps/current", h.GetCurrentMapHandler)
		api.POST("/maps/vote", h.VoteMapHandler)
		api.POST("/maps/skip", h.SkipMapHandler)

		api.POST("/games/:id/finish", h.FinishGameHandler)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "ok"})
}

const playerKey = "player"

// Activity records that the caller is active before any command runs.
func (h *Handler) Activity(c *gin.Context) {
	playerID := auth.PlayerID(c)
	name := auth.PlayerName(c)
	var player models.Player
	err := h.scheduler.Submit(c.Request.Context(), func(ctx context.Context) error {
		var err error
		player, err = h.games.RecordActivity(ctx, playerID, name)
		return err
	})
	if err != nil {
		h.serverError(c, "ACTIVITY_ERROR", "could not record activity", err)
		c.Abort()
		return
	}
	c.Set(playerKey, player)
	c.Next()
}

func currentPlayer(c *gin.Context) models.Player {
	p, _ := c.Get(playerKey)
	player, _ := p.(models.Player)
	return player
}

func (h *Handler) serverError(c *gin.Context, code, message string, err error) {
	h.log.Error(message, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, response.ErrorResponse{
		Code:    code,
		Message: message,
		Details: err.Error(),
	})
}
