package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pickup/internal/response"
	"pickup/internal/vote"

	"github.com/gin-gonic/gin"
)

type VoteRequest struct {
	Map string `json:"map" binding:"required"`
}

type CurrentMapResponse struct {
	ShortName   string    `json:"short_name"`
	FullName    string    `json:"full_name"`
	UpdatedAt   time.Time `json:"updated_at"`
	AutoRotated bool      `json:"auto_rotated"`
}

// GetCurrentMapHandler godoc
// @Summary		Current map
// @Tags			maps
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	CurrentMapResponse
// @Failure		404	{object}	response.ErrorResponse	"NO_CURRENT_MAP"
// @Router			/api/maps/current [get]
func (h *Handler) GetCurrentMapHandler(c *gin.Context) {
	current, m, err := h.rotation.Current(c.Request.Context())
	if err != nil {
		h.serverError(c, "DB_ERROR", "could not load current map", err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NO_CURRENT_MAP",
			Message: "no map is active",
		})
		return
	}
	c.JSON(http.StatusOK, CurrentMapResponse{
		ShortName:   m.ShortName,
		FullName:    m.FullName,
		UpdatedAt:   current.UpdatedAt,
		AutoRotated: current.AutoRotated,
	})
}

// VoteMapHandler godoc
// @Summary		Vote for a map
// @Tags			maps
// @Accept			json
// @Produce		json
// @Param			body	body		VoteRequest	true	"Map short name"
// @Security		BearerAuth
// @Success		200	{object}	vote.Result
// @Failure		400	{object}	response.ErrorResponse	"VALIDATION_ERROR"
// @Failure		404	{object}	response.ErrorResponse	"MAP_NOT_FOUND"
// @Router			/api/maps/vote [post]
func (h *Handler) VoteMapHandler(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "invalid request body",
			Details: err.Error(),
		})
		return
	}

	player := currentPlayer(c)
	var result vote.Result
	err := h.scheduler.Submit(c.Request.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.votes.CastMapVote(ctx, player.ID, req.Map)
		return err
	})
	if errors.Is(err, vote.ErrMapNotFound) {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "MAP_NOT_FOUND",
			Message: "no map with that name",
			Details: req.Map,
		})
		return
	}
	if err != nil {
		h.serverError(c, "VOTE_ERROR", "could not record vote", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SkipMapHandler godoc
// @Summary		Vote to skip the current map
// @Tags			maps
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	vote.Result
// @Router			/api/maps/skip [post]
func (h *Handler) SkipMapHandler(c *gin.Context) {
	player := currentPlayer(c)
	var result vote.Result
	err := h.scheduler.Submit(c.Request.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.votes.CastSkipVote(ctx, player.ID)
		return err
	})
	if err != nil {
		h.serverError(c, "VOTE_ERROR", "could not record skip vote", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
