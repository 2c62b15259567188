package config

import (
	"fmt"
	"math"
	"time"

	"portal/internal/model"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"production"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	RunMigrations      bool   `envconfig:"RUN_MIGRATIONS" default:"true"`

	// JWTSecret may be left empty when JWTSecretName points at a Secret
	// Manager secret.
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	JWTSecretName  string        `envconfig:"JWT_SECRET_NAME"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"12h"`

	S3URL           string `envconfig:"S3_URL"`
	S3Bucket        string `envconfig:"S3_BUCKET" required:"true"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`
	S3SecretKeyName string `envconfig:"S3_SECRET_KEY_NAME"`

	PresignExpiry           time.Duration `envconfig:"PRESIGN_EXPIRY" default:"15m"`
	MaxUploadMB             int64         `envconfig:"MAX_UPLOAD_MB" default:"2048"`
	DefaultAllowedStorageGB int64         `envconfig:"DEFAULT_ALLOWED_STORAGE_GB" default:"50"`
	BcryptCost              int           `envconfig:"BCRYPT_COST" default:"10"`
	CORSAllowedOrigins      []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Google Cloud settings. Events are published only when both are set.
	GCPProjectID          string `envconfig:"GCP_PROJECT_ID"`
	PubSubFileEventsTopic string `envconfig:"PUBSUB_FILE_EVENTS_TOPIC"`

	// Storage cleanup orchestrator settings
	CleanupQueueName            string `envconfig:"CLEANUP_QUEUE_NAME" default:"storage_cleanup_queue"`
	CleanupDeadLetterQueueName  string `envconfig:"CLEANUP_DEAD_LETTER_QUEUE_NAME" default:"storage_cleanup_queue_dlq"`
	CleanupEnabled              bool   `envconfig:"CLEANUP_ENABLED" default:"true"`
	CleanupPollTimeoutSec       int    `envconfig:"CLEANUP_POLL_TIMEOUT_SEC" default:"30"`
	CleanupPollMaxMsg           int    `envconfig:"CLEANUP_POLL_MAX_MSG" default:"10"`
	CleanupVisibilityTimeoutSec int    `envconfig:"CLEANUP_VISIBILITY_TIMEOUT_SEC" default:"60"`
	CleanupMaxRetries           int    `envconfig:"CLEANUP_MAX_RETRIES" default:"5"`
	CleanupBackoffInitialSec    int    `envconfig:"CLEANUP_BACKOFF_INITIAL_SEC" default:"1"`
	CleanupBackoffMaxSec        int    `envconfig:"CLEANUP_BACKOFF_MAX_SEC" default:"60"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MaxUploadBytes is the largest request body accepted for a streamed upload.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * mib
}

// DefaultAllowedStorage is the allowance in bytes for users created without one.
func (c *Config) DefaultAllowedStorage() int64 {
	return c.DefaultAllowedStorageGB * model.GiB
}

const mib int64 = 1024 * 1024

// validate rejects sizes whose byte counts would overflow an int64.
func (c *Config) validate() error {
	if c.DefaultAllowedStorageGB < 0 || c.DefaultAllowedStorageGB > model.MaxAllowedStorageGB {
		return fmt.Errorf("DEFAULT_ALLOWED_STORAGE_GB must be between 0 and %d, got %d", model.MaxAllowedStorageGB, c.DefaultAllowedStorageGB)
	}
	if c.MaxUploadMB <= 0 || c.MaxUploadMB > math.MaxInt64/mib {
		return fmt.Errorf("MAX_UPLOAD_MB must be between 1 and %d, got %d", math.MaxInt64/mib, c.MaxUploadMB)
	}
	return nil
}
