package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/sms"
	"golang.org/x/sync/errgroup"
)

// Sender delivers one message to one phone number
type Sender interface {
	Send(ctx context.Context, to, text string) sms.Result
}

// OutcomeRecorder durably counts one settled send for a job
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, jobID string, success bool) error
}

// BatchReport describes a batch that has fully settled
type BatchReport struct {
	Batch   int // 1-based
	Batches int
	Size    int
	Failed  int
	Settled int // sends settled so far across the job
}

// Dispatcher sends a job's message to its recipients in sequential batches
// with concurrent sends inside each batch
type Dispatcher struct {
	sender    Sender
	recorder  OutcomeRecorder
	batchSize int
	logger    *slog.Logger
}

// New creates a Dispatcher. A non-positive batchSize uses domain.DefaultBatchSize.
func New(sender Sender, recorder OutcomeRecorder, batchSize int, logger *slog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = domain.DefaultBatchSize
	}
	return &Dispatcher{
		sender:    sender,
		recorder:  recorder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// BatchSize returns the configured batch size
func (d *Dispatcher) BatchSize() int {
	return d.batchSize
}

// Dispatch sends message to every recipient and returns one result per recipient,
// in recipient order. Send failures never stop the run; a failed counter update
// is returned after the current batch settles.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	jobID string,
	recipients []domain.Recipient,
	message string,
	onBatch func(BatchReport),
) ([]domain.MessageResult, error) {
	results := make([]domain.MessageResult, len(recipients))
	batches := (len(recipients) + d.batchSize - 1) / d.batchSize

	for b := 0; b < batches; b++ {
		start := b * d.batchSize
		end := min(start+d.batchSize, len(recipients))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = d.send(ctx, recipients[i], message)
				if err := d.recorder.RecordOutcome(ctx, jobID, results[i].Status); err != nil {
					return fmt.Errorf("failed to record outcome for %s: %w", recipients[i].ID, err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		failed := 0
		for _, r := range results[start:end] {
			if !r.Status {
				failed++
			}
		}

		report := BatchReport{
			Batch:   b + 1,
			Batches: batches,
			Size:    end - start,
			Failed:  failed,
			Settled: end,
		}

		d.logger.Info("Batch settled",
			slog.String("job_id", jobID),
			slog.Int("batch", report.Batch),
			slog.Int("batches", report.Batches),
			slog.Int("size", report.Size),
			slog.Int("failed", report.Failed),
		)

		if onBatch != nil {
			onBatch(report)
		}
	}

	return results, nil
}

// send turns every outcome of one send, including a panic, into a MessageResult
func (d *Dispatcher) send(ctx context.Context, r domain.Recipient, message string) (result domain.MessageResult) {
	result = domain.MessageResult{
		Name:   r.Name,
		Number: r.PhoneNumber,
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("Send panicked",
				slog.String("member_id", r.ID),
				slog.Any("panic", p),
			)
			result.Status = false
			result.Error = fmt.Sprintf("send panicked: %v", p)
		}
	}()

	res := d.sender.Send(ctx, r.PhoneNumber, message)
	result.Status = res.Success
	if !res.Success {
		result.Error = res.Error
		if result.Error == "" {
			result.Error = "send failed"
		}
		d.logger.Warn("Send failed",
			slog.String("member_id", r.ID),
			slog.String("error", result.Error),
		)
	}

	return result
}
