package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/dispatcher"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/cache"
)

// JobStore is the subset of the job storage the runner drives
type JobStore interface {
	ListQueuedJobs(ctx context.Context, limit int) ([]domain.BroadcastJob, error)
	ClaimJob(ctx context.Context, jobID string) (*domain.BroadcastJob, error)
	SetTotalRecipients(ctx context.Context, jobID string, total int) error
	GetCounters(ctx context.Context, jobID string) (domain.Counters, error)
	CompleteJob(ctx context.Context, jobID string, results []byte) error
	FailJob(ctx context.Context, jobID, reason string) error
}

type RecipientResolver interface {
	Resolve(ctx context.Context, job *domain.BroadcastJob) ([]domain.Recipient, error)
}

type BatchDispatcher interface {
	Dispatch(
		ctx context.Context,
		jobID string,
		recipients []domain.Recipient,
		message string,
		onBatch func(dispatcher.BatchReport),
	) ([]domain.MessageResult, error)
}

// ProgressStore receives progress snapshots. Failures are only logged.
type ProgressStore interface {
	Store(ctx context.Context, p cache.Progress) error
}

// Summary is what one intake run reports back to its caller
type Summary struct {
	ProcessedJobs int      `json:"processedJobs"`
	JobIDs        []string `json:"jobIds"`
}

// Runner pulls queued broadcast jobs and takes each one to a terminal state
type Runner struct {
	store       JobStore
	resolver    RecipientResolver
	dispatcher  BatchDispatcher
	progress    ProgressStore
	intakeLimit int
	logger      *slog.Logger
}

type Option func(*Runner)

// WithProgressStore publishes progress snapshots after every batch and at the end of a job
func WithProgressStore(p ProgressStore) Option {
	return func(r *Runner) { r.progress = p }
}

// WithIntakeLimit overrides how many queued jobs one run picks up
func WithIntakeLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.intakeLimit = n
		}
	}
}

func New(store JobStore, resolver RecipientResolver, d BatchDispatcher, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		resolver:    resolver,
		dispatcher:  d,
		intakeLimit: domain.DefaultIntakeLimit,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessQueued picks up the oldest queued jobs and processes them one after another.
// Jobs claimed elsewhere in the meantime are skipped. Only a failure to read the
// queue is returned; per-job failures end up in the job row.
func (r *Runner) ProcessQueued(ctx context.Context) (Summary, error) {
	summary := Summary{JobIDs: []string{}}

	jobs, err := r.store.ListQueuedJobs(ctx, r.intakeLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to list queued jobs: %w", err)
	}

	if len(jobs) == 0 {
		r.logger.Debug("No queued jobs")
		return summary, nil
	}

	r.logger.Info("Picked up queued jobs", slog.Int("count", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			r.logger.Warn("Intake interrupted", slog.Int("processed", summary.ProcessedJobs))
			break
		}

		// once claimed a job runs to a terminal state; cancellation only stops the intake between jobs
		processed, err := r.ProcessJob(context.WithoutCancel(ctx), job.JobID)
		if err != nil {
			r.logger.Error("Job failed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
		if processed {
			summary.ProcessedJobs++
			summary.JobIDs = append(summary.JobIDs, job.JobID)
		}
	}

	return summary, nil
}

// ProcessJob claims one job and runs it to COMPLETED or FAILED. It reports
// processed=false when the job was no longer queued. A non-nil error means the
// job ended FAILED (or could not even be marked FAILED).
func (r *Runner) ProcessJob(ctx context.Context, jobID string) (processed bool, err error) {
	job, err := r.store.ClaimJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			r.logger.Info("Job no longer queued, skipping", slog.String("job_id", jobID))
			return false, nil
		}
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	start := time.Now()
	r.logger.Info("Processing job",
		slog.String("job_id", job.JobID),
		slog.String("members_filter", job.MembersFilter.String()),
	)

	results, runErr := r.run(ctx, job)

	// a cancelled intake still has to leave the job terminal
	finalCtx := context.WithoutCancel(ctx)

	if runErr == nil {
		runErr = r.complete(finalCtx, job.JobID, results)
	}

	if runErr != nil {
		if failErr := r.store.FailJob(finalCtx, job.JobID, runErr.Error()); failErr != nil {
			return true, errors.Join(runErr, fmt.Errorf("failed to mark job failed: %w", failErr))
		}
		r.publish(finalCtx, job.JobID, domain.JobStatusFailed)
		return true, runErr
	}

	r.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.Int("recipients", len(results)),
		slog.Duration("duration", time.Since(start)),
	)

	return true, nil
}

func (r *Runner) run(ctx context.Context, job *domain.BroadcastJob) ([]domain.MessageResult, error) {
	recipients, err := r.resolver.Resolve(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	if err := r.store.SetTotalRecipients(ctx, job.JobID, len(recipients)); err != nil {
		return nil, fmt.Errorf("failed to set total recipients: %w", err)
	}
	r.publish(ctx, job.JobID, domain.JobStatusProcessing)

	results, err := r.dispatcher.Dispatch(ctx, job.JobID, recipients, job.Message, func(dispatcher.BatchReport) {
		r.publish(ctx, job.JobID, domain.JobStatusProcessing)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch: %w", err)
	}

	return results, nil
}

// complete re-reads the stored counters, persists the sorted results and marks the job COMPLETED
func (r *Runner) complete(ctx context.Context, jobID string, results []domain.MessageResult) error {
	counters, err := r.store.GetCounters(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to read counters: %w", err)
	}
	if !counters.Consistent() {
		r.logger.Warn("Counters out of balance",
			slog.String("job_id", jobID),
			slog.Int("total", counters.Total),
			slog.Int("processed", counters.Processed),
			slog.Int("success", counters.Success),
			slog.Int("failed", counters.Failed),
		)
	}

	domain.SortResults(results)

	b, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := r.store.CompleteJob(ctx, jobID, b); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	r.storeProgress(ctx, jobID, domain.JobStatusCompleted, counters)
	return nil
}

// publish reads the current counters and stores a snapshot
func (r *Runner) publish(ctx context.Context, jobID string, status domain.JobStatus) {
	if r.progress == nil {
		return
	}

	counters, err := r.store.GetCounters(ctx, jobID)
	if err != nil {
		r.logger.Warn("Failed to read counters for progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.storeProgress(ctx, jobID, status, counters)
}

func (r *Runner) storeProgress(ctx context.Context, jobID string, status domain.JobStatus, counters domain.Counters) {
	if r.progress == nil {
		return
	}

	err := r.progress.Store(ctx, cache.Progress{
		JobID:    jobID,
		Status:   status,
		Counters: counters,
	})
	if err != nil {
		r.logger.Warn("Failed to store progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
