package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/community-broadcast/internal/app"
	"github.com/cuongbtq/community-broadcast/internal/config"
	"github.com/cuongbtq/community-broadcast/internal/worker"
	"github.com/cuongbtq/community-broadcast/shared/logger"
	"github.com/joho/godotenv"
)

func main() {
	// logs until the configured logger exists, and the final exit error
	bootLogger := logger.NewDefault()

	if err := run(bootLogger); err != nil {
		bootLogger.Error("Worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(bootLogger *logger.Logger) error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		bootLogger.Info("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	bootLogger.Info("Configuration loaded", slog.String("path", *configPath))

	appLogger, err := app.InitLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer components.Close()

	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Intake:        components.Runner,
		Deliveries:    components.Rabbit,
		Schedule:      cfg.Worker.TriggerSchedule,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	<-ctx.Done()
	appLogger.Info("Received signal, shutting down gracefully")

	// the job in flight finishes on its own context; only the wait is bounded
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := workerInstance.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit", slog.Any("error", err))
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
