package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/community-broadcast/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// ProcessQueued handles POST /api/v1/broadcasts/process
// Runs one intake pass over the queue and reports which jobs it took to a terminal state
func (h *BroadcastHandler) ProcessQueued(c *gin.Context) {
	// a scheduler hanging up must not abort a job halfway through its batches
	ctx := context.WithoutCancel(c.Request.Context())

	summary, err := h.runner.ProcessQueued(ctx)
	if err != nil {
		h.logger.Error("Intake run failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	jobIDs := summary.JobIDs
	if jobIDs == nil {
		jobIDs = []string{}
	}

	h.logger.Info("Intake run finished", slog.Int("processed_jobs", summary.ProcessedJobs))

	c.JSON(http.StatusOK, dto.ProcessResponse{
		Success:       true,
		ProcessedJobs: summary.ProcessedJobs,
		JobIDs:        jobIDs,
	})
}

// SendMessage handles POST /api/v1/messages
// Sends one SMS outside of any broadcast job
func (h *BroadcastHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	res := h.sender.Send(c.Request.Context(), req.PhoneNumber, req.Message)
	if !res.Success {
		h.logger.Warn("Direct message failed", slog.String("error", res.Error))
		c.JSON(http.StatusBadGateway, dto.SendMessageResponse{
			Success: false,
			Error:   res.Error,
		})
		return
	}

	c.JSON(http.StatusOK, dto.SendMessageResponse{Success: true})
}
