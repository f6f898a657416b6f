package dto

import (
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
)

type CreateBroadcastRequest struct {
	Message       string   `json:"message" binding:"required,max=1600"`
	MembersFilter string   `json:"members_filter" binding:"omitempty,oneof=All Paid Unpaid Partial"`
	MonthsFilter  []string `json:"months_filter" binding:"omitempty,max=24,dive,datetime=2006-01-02"`
	SearchFilter  string   `json:"search_filter" binding:"max=200"`
}

type ListBroadcastsRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=QUEUED PROCESSING COMPLETED FAILED"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Cursor   string `form:"cursor"`
}

type ListBroadcastsResponse struct {
	Broadcasts []BroadcastDTO `json:"broadcasts"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type BroadcastDTO struct {
	JobID           string                 `json:"job_id"`
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	MembersFilter   string                 `json:"members_filter"`
	MonthsFilter    []string               `json:"months_filter"`
	SearchFilter    string                 `json:"search_filter"`
	TotalRecipients int                    `json:"total_recipients"`
	ProcessedCount  int                    `json:"processed_count"`
	SuccessCount    int                    `json:"success_count"`
	FailedCount     int                    `json:"failed_count"`
	Results         []domain.MessageResult `json:"results,omitempty"`
	Error           string                 `json:"error,omitempty"`
	StartedAt       string                 `json:"started_at,omitempty"`
	CompletedAt     string                 `json:"completed_at,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

type ProgressResponse struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Counters  domain.Counters `json:"counters"`
	Source    string          `json:"source"` // "cache" or "database"
	UpdatedAt string          `json:"updated_at"`
}

// ProcessResponse is the trigger endpoint's reply
type ProcessResponse struct {
	Success       bool     `json:"success"`
	ProcessedJobs int      `json:"processedJobs"`
	JobIDs        []string `json:"jobIds"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type SendMessageRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,max=32"`
	Message     string `json:"message" binding:"required,max=1600"`
}

type SendMessageResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewBroadcastDTO converts a stored job. Results are included only when withResults is set.
func NewBroadcastDTO(job *domain.BroadcastJob, withResults bool) (BroadcastDTO, error) {
	out := BroadcastDTO{
		JobID:           job.JobID,
		Status:          job.Status.String(),
		Message:         job.Message,
		MembersFilter:   job.MembersFilter.String(),
		MonthsFilter:    []string{},
		SearchFilter:    job.SearchFilter,
		TotalRecipients: job.TotalRecipients,
		ProcessedCount:  job.ProcessedCount,
		SuccessCount:    job.SuccessCount,
		FailedCount:     job.FailedCount,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}

	months, err := job.Months()
	if err != nil {
		return out, err
	}
	for _, m := range months {
		out.MonthsFilter = append(out.MonthsFilter, domain.MonthKey(m))
	}

	if job.ErrorMessage != nil {
		out.Error = *job.ErrorMessage
	}
	if job.StartedAt != nil {
		out.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	if withResults {
		results, err := job.DecodeResults()
		if err != nil {
			return out, err
		}
		out.Results = results
	}

	return out, nil
}
