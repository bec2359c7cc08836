package config

import (
	"time"

	"github.com/eventpulse/eventpulse/internal/platform/envutil"
)

// Settings holds all environment-driven configuration for the ingestion
// service. Load once at startup and pass down explicitly; nothing in this
// package caches process-wide state.
type Settings struct {
	AppEnv string

	// Storage
	StorageBackend string // local|gcs
	RawDataDir     string
	ContractsDir   string
	RawGCSBucket   string
	RawGCSPrefix   string

	// Queue
	QueueBackend string // redis|inline
	RedisURL     string
	QueueName    string

	// Ingestion controls
	AllowedFileExts []string
	MaxFileMB       int

	DriftPolicyDefault string // warn|fail|allow

	// Processing hardening
	ProcessingTTL         time.Duration
	ReclaimMaxPerRun      int
	MaxProcessingAttempts int

	// Worker
	WorkerConcurrency int
	SweepInterval     time.Duration
}

func Load() Settings {
	maxAttempts := envutil.Int("MAX_PROCESSING_ATTEMPTS", 5)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Settings{
		AppEnv: envutil.String("APP_ENV", "local"),

		StorageBackend: envutil.String("STORAGE_BACKEND", "local"),
		RawDataDir:     envutil.String("RAW_DATA_DIR", "/data/raw"),
		ContractsDir:   envutil.String("CONTRACTS_DIR", "/data/contracts"),
		RawGCSBucket:   envutil.String("RAW_GCS_BUCKET", ""),
		RawGCSPrefix:   envutil.String("RAW_GCS_PREFIX", "raw"),

		QueueBackend: envutil.String("QUEUE_BACKEND", "redis"),
		RedisURL:     envutil.String("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:    envutil.String("QUEUE_NAME", "eventpulse:ingestions"),

		AllowedFileExts: envutil.CSV("ALLOWED_FILE_EXTS", []string{".csv"}),
		MaxFileMB:       envutil.Int("MAX_FILE_MB", 50),

		DriftPolicyDefault: envutil.String("DRIFT_POLICY_DEFAULT", "warn"),

		ProcessingTTL:         envutil.DurationSeconds("PROCESSING_TTL_SECONDS", 15*time.Minute),
		ReclaimMaxPerRun:      envutil.Int("RECLAIM_MAX_PER_RUN", 50),
		MaxProcessingAttempts: maxAttempts,

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		SweepInterval:     envutil.DurationSeconds("SWEEP_INTERVAL_SECONDS", time.Minute),
	}
}
