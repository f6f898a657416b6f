package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/api/dto"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultPageSize = 20

// CreateBroadcast handles POST /api/v1/broadcasts
// Queues a broadcast job and nudges the worker
func (h *BroadcastHandler) CreateBroadcast(c *gin.Context) {
	var req dto.CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	filter := domain.MembersFilter(req.MembersFilter)
	if filter == "" {
		filter = domain.MembersFilterAll
	}

	months := make([]time.Time, 0, len(req.MonthsFilter))
	seen := make(map[string]struct{}, len(req.MonthsFilter))
	for _, v := range req.MonthsFilter {
		m, err := domain.ParseMonth(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		if _, dup := seen[domain.MonthKey(m)]; dup {
			continue
		}
		seen[domain.MonthKey(m)] = struct{}{}
		months = append(months, m)
	}

	monthsFilter, err := domain.EncodeMonths(months)
	if err != nil {
		h.logger.Error("Failed to encode months filter", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create broadcast",
		})
		return
	}

	now := time.Now().UTC()
	job := domain.BroadcastJob{
		JobID:         uuid.New().String(),
		Status:        domain.JobStatusQueued,
		Message:       req.Message,
		MembersFilter: filter,
		MonthsFilter:  monthsFilter,
		SearchFilter:  req.SearchFilter,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.jobs.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create broadcast", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create broadcast",
		})
		return
	}

	h.logger.Info("Broadcast queued",
		slog.String("job_id", job.JobID),
		slog.String("members_filter", filter.String()),
		slog.Int("months", len(months)),
	)

	// the cron trigger still picks the job up if the wake-up is lost
	if h.publisher != nil {
		body, _ := json.Marshal(domain.JobMessage{JobID: job.JobID})
		if err := h.publisher.Publish(c.Request.Context(), body, "application/json"); err != nil {
			h.logger.Warn("Failed to publish wake-up",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	out, err := dto.NewBroadcastDTO(&job, false)
	if err != nil {
		h.logger.Error("Failed to render broadcast", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to render broadcast",
		})
		return
	}

	c.JSON(http.StatusCreated, out)
}

// GetBroadcast handles GET /api/v1/broadcasts/:job_id
// Returns the job with its per-recipient results once finished
func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	out, err := dto.NewBroadcastDTO(job, true)
	if err != nil {
		h.logger.Error("Failed to render broadcast",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to render broadcast",
		})
		return
	}

	c.JSON(http.StatusOK, out)
}

// ListBroadcasts handles GET /api/v1/broadcasts
// Lists jobs newest first with cursor pagination
func (h *BroadcastHandler) ListBroadcasts(c *gin.Context) {
	var req dto.ListBroadcastsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   domain.JobStatus(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list broadcasts", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list broadcasts",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListBroadcastsResponse{Broadcasts: make([]dto.BroadcastDTO, 0, len(jobs))}
	for i := range jobs {
		out, err := dto.NewBroadcastDTO(&jobs[i], false)
		if err != nil {
			h.logger.Warn("Broadcast has unreadable filter",
				slog.String("job_id", jobs[i].JobID),
				slog.String("error", err.Error()),
			)
		}
		resp.Broadcasts = append(resp.Broadcasts, out)
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// GetProgress handles GET /api/v1/broadcasts/:job_id/progress
// Serves the cached snapshot when there is one, otherwise the job row
func (h *BroadcastHandler) GetProgress(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if h.progress != nil {
		p, ok, err := h.progress.Get(c.Request.Context(), jobID)
		if err != nil {
			h.logger.Warn("Failed to read cached progress",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			c.JSON(http.StatusOK, dto.ProgressResponse{
				JobID:     p.JobID,
				Status:    p.Status.String(),
				Counters:  p.Counters,
				Source:    "cache",
				UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
			})
			return
		}
	}

	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		JobID:     job.JobID,
		Status:    job.Status.String(),
		Counters:  job.Counters(),
		Source:    "database",
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	})
}

// Health handles GET /health
func (h *BroadcastHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"service":  "broadcast-api-service",
				"database": "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "broadcast-api-service",
	})
}

// loadJob validates the job_id param and loads the job, writing the error response itself
func (h *BroadcastHandler) loadJob(c *gin.Context) (*domain.BroadcastJob, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return nil, false
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "broadcast not found",
			})
			return nil, false
		}
		h.logger.Error("Failed to get broadcast",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get broadcast",
		})
		return nil, false
	}

	return job, true
}
