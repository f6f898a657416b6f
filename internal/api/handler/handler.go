package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/runner"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
	"github.com/cuongbtq/community-broadcast/internal/cache"
	"github.com/cuongbtq/community-broadcast/internal/sms"
)

// JobStore is the job storage used by the HTTP layer
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.BroadcastJob) error
	GetJobByID(ctx context.Context, jobID string) (*domain.BroadcastJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.BroadcastJob, error)
}

// Publisher sends worker wake-up messages
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

type IntakeRunner interface {
	ProcessQueued(ctx context.Context) (runner.Summary, error)
}

type ProgressReader interface {
	Get(ctx context.Context, jobID string) (cache.Progress, bool, error)
}

type MessageSender interface {
	Send(ctx context.Context, to, text string) sms.Result
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers. Publisher and Progress are optional.
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobStore
	Publisher Publisher
	Runner    IntakeRunner
	Progress  ProgressReader
	Sender    MessageSender
	DB        Pinger

	// TriggerToken guards the trigger and direct-send endpoints when RequireAuth is set
	TriggerToken string
	RequireAuth  bool
}

// BroadcastHandler handles broadcast-related HTTP requests
type BroadcastHandler struct {
	logger    *slog.Logger
	jobs      JobStore
	publisher Publisher
	runner    IntakeRunner
	progress  ProgressReader
	sender    MessageSender
	db        Pinger
}

// NewBroadcastHandler creates a new BroadcastHandler instance
func NewBroadcastHandler(deps *Dependencies) *BroadcastHandler {
	return &BroadcastHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		publisher: deps.Publisher,
		runner:    deps.Runner,
		progress:  deps.Progress,
		sender:    deps.Sender,
		db:        deps.DB,
	}
}
