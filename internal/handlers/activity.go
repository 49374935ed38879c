package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RecordActivityHandler godoc
// @Summary		Record activity
// @Description	Marks the player active and refreshes the display name
// @Tags			players
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	models.Player
// @Router			/api/activity [post]
func (h *Handler) RecordActivityHandler(c *gin.Context) {
	// The Activity middleware already did the work.
	c.JSON(http.StatusOK, currentPlayer(c))
}
