package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pickup/internal/game"
	"pickup/internal/models"
	"pickup/internal/response"

	"github.com/gin-gonic/gin"
)

type FinishGameResponse struct {
	WaitlistID    string    `json:"waitlist_id"`
	EndWaitlistAt time.Time `json:"end_waitlist_at"`
}

// FinishGameHandler godoc
// @Summary		Finish a game
// @Description	Frees the game's players; they are re-added to the queue after the re-add delay
// @Tags			games
// @Produce		json
// @Param			id	path		string	true	"Game id"
// @Security		BearerAuth
// @Success		200	{object}	FinishGameResponse
// @Failure		404	{object}	response.ErrorResponse	"GAME_NOT_FOUND"
// @Failure		409	{object}	response.ErrorResponse	"GAME_FINISHED"
// @Router			/api/games/{id}/finish [post]
func (h *Handler) FinishGameHandler(c *gin.Context) {
	gameID := c.Param("id")
	var waitlist *models.QueueWaitlist
	err := h.scheduler.Submit(c.Request.Context(), func(ctx context.Context) error {
		var err error
		waitlist, err = h.games.FinishGame(ctx, gameID)
		return err
	})
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "GAME_NOT_FOUND",
			Message: "game not found",
		})
	case errors.Is(err, game.ErrGameFinished):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "GAME_FINISHED",
			Message: "game already finished",
		})
	case err != nil:
		h.serverError(c, "DB_ERROR", "could not finish game", err)
	default:
		c.JSON(http.StatusOK, FinishGameResponse{
			WaitlistID:    waitlist.ID,
			EndWaitlistAt: waitlist.EndWaitlistAt,
		})
	}
}
