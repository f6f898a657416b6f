// Package app wires configuration into the clients and services both binaries share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/dispatcher"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/resolver"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/runner"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
	"github.com/cuongbtq/community-broadcast/internal/cache"
	"github.com/cuongbtq/community-broadcast/internal/config"
	"github.com/cuongbtq/community-broadcast/internal/sms"
	"github.com/cuongbtq/community-broadcast/migrations"
	"github.com/cuongbtq/community-broadcast/shared/logger"
	"github.com/cuongbtq/community-broadcast/shared/postgresql"
	"github.com/cuongbtq/community-broadcast/shared/rabbitmq"
	"github.com/redis/go-redis/v9"
)

// Components are the long-lived clients and services of one process
type Components struct {
	DB       *postgresql.Client
	Rabbit   *rabbitmq.Client
	Progress *cache.ProgressCache // nil when Redis is disabled or unreachable
	Storage  *storage.Storage
	SMS      *sms.Client
	Runner   *runner.Runner

	logger *slog.Logger
}

// Build connects to every backing service and assembles the job runner.
// Clients opened before a failure are closed again.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *Components, err error) {
	c := &Components{logger: log}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.DB, err = InitPostgreSQL(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := c.DB.Migrate(ctx, migrations.FS); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	c.Rabbit, err = InitRabbitMQ(&cfg.RabbitMQ, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	c.Progress = InitProgressCache(ctx, &cfg.Redis, log)

	c.Storage = storage.NewStorage(c.DB.GetDB(), log)
	c.SMS = sms.NewClient(sms.Config{
		URL:         cfg.SMS.URL,
		UserID:      cfg.SMS.UserID,
		APIKey:      cfg.SMS.APIKey,
		SenderID:    cfg.SMS.SenderID,
		CountryCode: cfg.SMS.CountryCode,
		Timeout:     cfg.SMS.Timeout,
		RetryCount:  cfg.SMS.RetryCount,
		RatePerSec:  cfg.SMS.RatePerSec,
	}, log)

	opts := []runner.Option{runner.WithIntakeLimit(cfg.Broadcast.IntakeLimit)}
	if c.Progress != nil {
		opts = append(opts, runner.WithProgressStore(c.Progress))
	}

	c.Runner = runner.New(
		c.Storage,
		resolver.New(c.Storage, log),
		dispatcher.New(c.SMS, c.Storage, cfg.Broadcast.BatchSize, log),
		log,
		opts...,
	)

	return c, nil
}

// Close releases every client that was opened
func (c *Components) Close() {
	var errs []error
	if c.Progress != nil {
		errs = append(errs, c.Progress.Close())
	}
	if c.Rabbit != nil {
		errs = append(errs, c.Rabbit.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("Failed to close some clients", slog.Any("error", err))
	}
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectInterval: cfg.ConnectInterval,
	}, log)
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, log)
}

// InitProgressCache connects to Redis. Progress snapshots are optional, so an
// empty address or an unreachable server yields nil instead of an error.
func InitProgressCache(ctx context.Context, cfg *config.RedisConfig, log *slog.Logger) *cache.ProgressCache {
	if cfg.Addr == "" {
		log.Info("Redis address not set, progress cache disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pc := cache.NewProgressCache(rdb, cfg.ProgressTTL)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := pc.Ping(pingCtx); err != nil {
		log.Warn("Redis unreachable, progress cache disabled",
			slog.String("addr", cfg.Addr),
			slog.Any("error", err),
		)
		_ = pc.Close()
		return nil
	}

	log.Info("Progress cache connected",
		slog.String("addr", cfg.Addr),
		slog.Duration("ttl", cfg.ProgressTTL),
	)

	return pc
}
