package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, status, message, members_filter, months_filter, search_filter,
	total_recipients, processed_count, success_count, failed_count,
	results, error_message, started_at, completed_at, created_at, updated_at
`

// Storage handles all database operations for broadcast jobs and members
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job. The caller sets id, status and timestamps.
func (s *Storage) CreateJob(ctx context.Context, job *domain.BroadcastJob) error {
	query := `
		INSERT INTO broadcast_jobs (
			job_id, status, message, members_filter, months_filter, search_filter,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.Status,
		job.Message,
		job.MembersFilter,
		job.MonthsFilter,
		job.SearchFilter,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.BroadcastJob, error) {
	query := `SELECT ` + jobColumns + ` FROM broadcast_jobs WHERE job_id = $1`

	var job domain.BroadcastJob
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last row of the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can detect a next page
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.BroadcastJob, error) {
	query := `SELECT ` + jobColumns + ` FROM broadcast_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.BroadcastJob
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ListQueuedJobs returns up to limit QUEUED jobs, oldest first
func (s *Storage) ListQueuedJobs(ctx context.Context, limit int) ([]domain.BroadcastJob, error) {
	query := `SELECT ` + jobColumns + ` FROM broadcast_jobs WHERE status = $1 ORDER BY created_at ASC, job_id ASC LIMIT $2`

	var jobs []domain.BroadcastJob
	if err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusQueued, limit); err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob moves a job from QUEUED to PROCESSING in one conditional update.
// Returns ErrJobAlreadyClaimed when the job is gone or no longer queued.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.BroadcastJob, error) {
	query := `UPDATE broadcast_jobs SET status = $1, started_at = NOW(), updated_at = NOW() WHERE job_id = $2 AND status = $3 RETURNING ` + jobColumns

	var job domain.BroadcastJob
	err := s.db.QueryRowxContext(ctx, query, domain.JobStatusProcessing, jobID, domain.JobStatusQueued).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("members_filter", job.MembersFilter.String()),
	)

	return &job, nil
}

// SetTotalRecipients fixes the recipient count of a processing job
func (s *Storage) SetTotalRecipients(ctx context.Context, jobID string, total int) error {
	query := `UPDATE broadcast_jobs SET total_recipients = $1, updated_at = NOW() WHERE job_id = $2 AND status = $3`

	result, err := s.db.ExecContext(ctx, query, total, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to set total recipients: %w", err)
	}

	return expectOneRow(result, jobID)
}

// RecordOutcome counts one settled send with a single atomic increment.
// Counters are never read back and rewritten, so concurrent calls cannot lose updates.
func (s *Storage) RecordOutcome(ctx context.Context, jobID string, success bool) error {
	query := `UPDATE broadcast_jobs SET processed_count = processed_count + 1, success_count = success_count + $1, failed_count = failed_count + $2, updated_at = NOW() WHERE job_id = $3`

	successInc, failedInc := 0, 1
	if success {
		successInc, failedInc = 1, 0
	}

	result, err := s.db.ExecContext(ctx, query, successInc, failedInc, jobID)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	return expectOneRow(result, jobID)
}

// GetCounters reads the job's counters straight from the row
func (s *Storage) GetCounters(ctx context.Context, jobID string) (domain.Counters, error) {
	query := `SELECT total_recipients, processed_count, success_count, failed_count FROM broadcast_jobs WHERE job_id = $1`

	var c domain.Counters
	err := s.db.QueryRowxContext(ctx, query, jobID).Scan(&c.Total, &c.Processed, &c.Success, &c.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Counters{}, domain.ErrJobNotFound
		}
		return domain.Counters{}, fmt.Errorf("failed to get counters: %w", err)
	}

	return c, nil
}

// CompleteJob stores the serialized results and marks the job COMPLETED
func (s *Storage) CompleteJob(ctx context.Context, jobID string, results []byte) error {
	query := `UPDATE broadcast_jobs SET status = $1, results = $2::jsonb, completed_at = NOW(), updated_at = NOW() WHERE job_id = $3 AND status = $4`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, string(results), jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if err := expectOneRow(result, jobID); err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusCompleted.String()),
	)

	return nil
}

// FailJob marks the job FAILED with the given reason
func (s *Storage) FailJob(ctx context.Context, jobID, reason string) error {
	query := `UPDATE broadcast_jobs SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW() WHERE job_id = $3 AND status = $4`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, reason, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if err := expectOneRow(result, jobID); err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", domain.JobStatusFailed.String()),
	)

	return nil
}

func expectOneRow(result sql.Result, jobID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrJobNotFound)
	}
	return nil
}
