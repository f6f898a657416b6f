package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/runner"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
)

// Intake runs one pass over the queued broadcast jobs
type Intake interface {
	ProcessQueued(ctx context.Context) (runner.Summary, error)
}

// DeliverySource is the queue the worker listens on for wake-ups
type DeliverySource interface {
	SetPrefetch(count int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Intake        Intake
	Deliveries    DeliverySource // optional; without it only the schedule wakes the worker
	Schedule      string         // cron spec, e.g. "@every 1m"; empty disables it
	PrefetchCount int
}

// Worker wakes the intake loop on queue deliveries and schedule ticks.
// All intake runs happen on one goroutine, so runs never overlap in a process.
type Worker struct {
	logger        *slog.Logger
	intake        Intake
	deliveries    DeliverySource
	schedule      string
	prefetchCount int
	workerID      string

	cron   *cron.Cron
	wake   chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a new worker instance. An invalid schedule is an error.
func NewWorker(cfg *Config) (*Worker, error) {
	w := &Worker{
		logger:        cfg.Logger,
		intake:        cfg.Intake,
		deliveries:    cfg.Deliveries,
		schedule:      cfg.Schedule,
		prefetchCount: cfg.PrefetchCount,
		workerID:      "broadcast-worker-" + uuid.NewString()[:8],
		wake:          make(chan string, 1),
	}

	if w.prefetchCount <= 0 {
		w.prefetchCount = 10
	}

	if w.schedule != "" {
		w.cron = cron.New(cron.WithLocation(time.Local))
		if _, err := w.cron.AddFunc(w.schedule, func() { w.RequestRun("schedule") }); err != nil {
			return nil, fmt.Errorf("invalid trigger schedule %q: %w", w.schedule, err)
		}
	}

	return w, nil
}

// Start begins listening for wake-ups. It returns once everything is running.
func (w *Worker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("schedule", w.schedule),
	)

	if w.deliveries != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			w.cancel()
			return err
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.triggerLoop(ctx)
	}()

	if w.cron != nil {
		w.cron.Start()
	}

	// pick up anything queued while no worker was running
	w.RequestRun("startup")

	return nil
}

// Stop stops accepting wake-ups and waits for the running job to reach a terminal state,
// or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")

	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker did not stop in time: %w", ctx.Err())
	}
}

// RequestRun asks for an intake run. Requests made while one is already pending collapse into it.
func (w *Worker) RequestRun(reason string) {
	select {
	case w.wake <- reason:
		w.logger.Debug("Intake run requested", slog.String("reason", reason))
	default:
		w.logger.Debug("Intake run already pending", slog.String("reason", reason))
	}
}
