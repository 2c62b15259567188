package router

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"portal/internal/api/v1/handler"
	"portal/internal/config"
	"portal/internal/dbx"
	"portal/internal/metrics"
	"portal/internal/middleware"
	"portal/internal/migrations"
	"portal/internal/pgmq"
	"portal/internal/policy"
	"portal/internal/pubsub"
	"portal/internal/repository"
	"portal/internal/service"
	"portal/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the portal's dependencies and returns the root handler together
// with the database handle, which the caller must close.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *sql.DB, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")
	logger.Info().Str("db_connection_string_port_check", getPortFromDSN(cfg.DBConnectionString)).Msg("DB connection string port")

	// 1. Open DB connection (connection pooling)
	db, err := dbx.Open(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	if cfg.RunMigrations {
		if err := migrations.Up(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info().Msg("Migrations applied")
	}

	// 2. Initialize object store
	s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
		URL:       cfg.S3URL,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	store := storage.NewS3Store(s3Client, cfg.S3Bucket, logger)

	// 3. Initialize metrics and validator
	m := metrics.Init(nil)
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Initialize event publisher and cleanup queue. Both are optional.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" && cfg.PubSubFileEventsTopic != "" {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Pub/Sub unavailable, file events disabled")
		} else {
			publisher = p
		}
	}
	events := service.NewEventSink(publisher, cfg.PubSubFileEventsTopic, logger)

	var pgmqClient *pgmq.Client
	if cfg.CleanupEnabled {
		pgmqClient = pgmq.New(db)
	}
	cleanup := service.NewCleanupQueue(pgmqClient, cfg.CleanupQueueName)

	// 5. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(db)
	fileRepo := repository.NewFileRepository(db)
	phaseRepo := repository.NewPhaseRepository(db)

	phaseSvc := service.NewPhaseService(phaseRepo, m, logger)
	fileSvc := service.NewFileService(fileRepo, userRepo, phaseSvc, store, cleanup, events, cfg.PresignExpiry, cfg.MaxUploadBytes(), m, logger)
	userSvc := service.NewUserService(userRepo, fileRepo, store, cleanup, events, cfg.DefaultAllowedStorage(), cfg.BcryptCost, m, logger)
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.AccessTokenTTL, logger)

	if phase, err := phaseSvc.Current(ctx); err == nil {
		m.SetPhaseOne(phase == policy.PhaseOne)
	}

	fileHandler := handler.NewFileHandler(fileSvc, validate, cfg.MaxUploadBytes(), logger)
	reviewHandler := handler.NewReviewHandler(fileSvc, logger)
	adminHandler := handler.NewAdminHandler(userSvc, phaseSvc, validate, logger)
	authHandler := handler.NewAuthHandler(authSvc, validate, logger)

	// 6. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(authSvc, logger)

	// 7. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	fileHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	reviewHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	adminHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	authHandler.RegisterRoutes(apiV1Mux)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// 8. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(logger, m)(c.Handler(mux)), db, nil
}

// getPortFromDSN is a helper function to extract the port from a DSN string.
// It is intended for debugging purposes.
func getPortFromDSN(dsn string) string {
	parts := strings.Split(dsn, ":")
	for i, part := range parts {
		if strings.Contains(part, "@") {
			// This part contains user:pass@host, next part is port
			if len(parts) > i+1 {
				portAndDB := strings.Split(parts[i+1], "/")
				if len(portAndDB) > 0 {
					return portAndDB[0]
				}
			}
		}
	}
	return "not_found"
}
