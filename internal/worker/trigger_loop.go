package worker

import (
	"context"
	"log/slog"
	"time"
)

// triggerLoop is the only goroutine that runs the intake
func (w *Worker) triggerLoop(ctx context.Context) {
	w.logger.Info("Trigger loop started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Trigger loop stopped - context canceled")
			return

		case reason := <-w.wake:
			w.runIntake(ctx, reason)
		}
	}
}

func (w *Worker) runIntake(ctx context.Context, reason string) {
	start := time.Now()

	summary, err := w.intake.ProcessQueued(ctx)
	if err != nil {
		w.logger.Error("Intake run failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	if summary.ProcessedJobs == 0 {
		w.logger.Debug("Intake run found no work", slog.String("reason", reason))
		return
	}

	w.logger.Info("Intake run finished",
		slog.String("reason", reason),
		slog.Int("processed_jobs", summary.ProcessedJobs),
		slog.Any("job_ids", summary.JobIDs),
		slog.Duration("duration", time.Since(start)),
	)

	// more may be queued than one run takes
	if ctx.Err() == nil {
		w.RequestRun("backlog")
	}
}
