package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"portal/internal/config"
	"portal/internal/dbx"
	"portal/internal/logger"
	"portal/internal/metrics"
	"portal/internal/orchestrator/cleanup"
	"portal/internal/pgmq"
	"portal/internal/service"
	"portal/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Orchestrator mode: cleanup")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := service.ResolveConfigSecrets(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve secrets")
	}

	// Initialize DB connection
	db, err := dbx.Open(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database unavailable")
	}
	defer db.Close()
	logger.Info().Msg("Database connection established")

	// Initialize PGMQ client
	pgmqClient := pgmq.New(db)
	logger.Info().Msg("PGMQ client initialized")

	// Dispatch to the selected orchestrator
	var runErr error
	switch *mode {
	case "cleanup":
		s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
			URL:       cfg.S3URL,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		worker := cleanup.NewWorker(pgmqClient, storage.NewS3Store(s3Client, cfg.S3Bucket, logger), cleanup.Config{
			Queue:           cfg.CleanupQueueName,
			DeadLetterQueue: cfg.CleanupDeadLetterQueueName,
			VisibilitySec:   cfg.CleanupVisibilityTimeoutSec,
			MaxMessages:     cfg.CleanupPollMaxMsg,
			PollSec:         cfg.CleanupPollTimeoutSec,
			MaxRetries:      cfg.CleanupMaxRetries,
			BackoffInitial:  time.Duration(cfg.CleanupBackoffInitialSec) * time.Second,
			BackoffMax:      time.Duration(cfg.CleanupBackoffMaxSec) * time.Second,
		}, metrics.Init(nil), logger)
		runErr = worker.Run(ctx)
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("Orchestrator exited with error")
	}
	logger.Info().Msg("Orchestrator stopped")
}
