package handlers

import (
	"context"
	"net/http"

	"pickup/internal/admission"
	"pickup/internal/models"
	"pickup/internal/response"
	"pickup/internal/tasks"

	"github.com/gin-gonic/gin"
)

type JoinRequest struct {
	QueueIDs []string `json:"queue_ids"`
}

type JoinResponse struct {
	Message  string   `json:"message"`
	QueueIDs []string `json:"queue_ids"`
}

// GetQueuesHandler godoc
// @Summary		Queue status
// @Description	Occupancy of every queue in creation order
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		admission.QueueStatus
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR"
// @Router			/api/queues [get]
func (h *Handler) GetQueuesHandler(c *gin.Context) {
	statuses, err := admission.AllQueueStatuses(c.Request.Context(), h.db)
	if err != nil {
		h.serverError(c, "DB_ERROR", "could not load queues", err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// JoinQueuesHandler godoc
// @Summary		Join queues
// @Description	Requests admission to the listed queues, or every unlocked queue when none are given.
// @Description	Admission happens on the next scheduler tick; the result is announced in the channel.
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			body	body		JoinRequest	false	"Candidate queues in preference order"
// @Security		BearerAuth
// @Success		202	{object}	JoinResponse
// @Failure		400	{object}	response.ErrorResponse	"VALIDATION_ERROR, NO_QUEUES"
// @Failure		500	{object}	response.ErrorResponse	"DB_ERROR, CHANNEL_ERROR"
// @Router			/api/queues/join [post]
func (h *Handler) JoinQueuesHandler(c *gin.Context) {
	var req JoinRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "invalid request body",
				Details: err.Error(),
			})
			return
		}
	}

	queueIDs := req.QueueIDs
	if len(queueIDs) == 0 {
		var queues []models.Queue
		if err := h.db.WithContext(c.Request.Context()).Where("is_locked = ?", false).Order("created_at ASC").Find(&queues).Error; err != nil {
			h.serverError(c, "DB_ERROR", "could not load queues", err)
			return
		}
		for _, q := range queues {
			queueIDs = append(queueIDs, q.ID)
		}
	}
	if len(queueIDs) == 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "NO_QUEUES",
			Message: "there are no open queues",
		})
		return
	}

	player := currentPlayer(c)
	msg := admission.NewMessage(player.ID, player.Name, queueIDs, true)
	if err := h.channel.Push(c.Request.Context(), msg); err != nil {
		h.serverError(c, "CHANNEL_ERROR", "could not enqueue join request", err)
		return
	}
	h.scheduler.Trigger(tasks.AddPlayerJob)
	c.JSON(http.StatusAccepted, JoinResponse{Message: "join request accepted", QueueIDs: queueIDs})
}

// LeaveQueueHandler godoc
// @Summary		Leave queues
// @Description	Leaves one queue, or every queue and pending waitlist when no id is given
// @Tags			queue
// @Produce		json
// @Param			id	path		string	false	"Queue id"
// @Security		BearerAuth
// @Success		200	{object}	map[string]int64
// @Failure		500	{object}	response.ErrorResponse	"LEAVE_ERROR"
// @Router			/api/queues/{id}/leave [post]
func (h *Handler) LeaveQueueHandler(c *gin.Context) {
	player := currentPlayer(c)
	queueID := c.Param("id")
	var removed int64
	err := h.scheduler.Submit(c.Request.Context(), func(ctx context.Context) error {
		var err error
		removed, err = h.games.Leave(ctx, player.ID, queueID)
		return err
	})
	if err != nil {
		h.serverError(c, "LEAVE_ERROR", "could not leave queue", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
