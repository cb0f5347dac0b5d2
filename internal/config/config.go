// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New(ctx) builds a Config with defaults.
//   - Load layers defaults, an optional YAML file and SPHERE_* env vars.
//   - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Fee is one tier's post price schedule.
type Fee struct {
	Base     float64 `koanf:"base"`
	PerPoint float64 `koanf:"per_point"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ArtifactDir is read when no bucket is configured.
	ArtifactDir string `koanf:"artifact_dir"`
	// ArtifactBucket switches the registry to S3.
	ArtifactBucket   string `koanf:"artifact_bucket"`
	ArtifactPrefix   string `koanf:"artifact_prefix"`
	ArtifactRegion   string `koanf:"artifact_region"`
	ArtifactEndpoint string `koanf:"artifact_endpoint"`
	// ReloadInterval polls the artifact source; zero disables hot reload.
	ReloadInterval time.Duration `koanf:"reload_interval"`

	// StoreDriver is memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// NATSURL enables the broker sink, score stream and profile subscriber.
	NATSURL        string  `koanf:"nats_url"`
	AlertSubject   string  `koanf:"alert_subject"`
	ScoreSubject   string  `koanf:"score_subject"`
	ProfileSubject string  `koanf:"profile_subject"`
	NotifyRate     float64 `koanf:"notify_rate"`
	NotifyBurst    int     `koanf:"notify_burst"`
	// ScoreRate paces score updates apart from notifications; 0 is unlimited.
	ScoreRate  float64 `koanf:"score_rate"`
	ScoreBurst int     `koanf:"score_burst"`

	// TopK bounds each side of the attribution.
	TopK int `koanf:"top_k"`
	// Samples is the permutation count of the sampling decomposer.
	Samples int `koanf:"samples"`

	TierBoundaries []float64 `koanf:"tier_boundaries"`
	TierLabels     []string  `koanf:"tier_labels"`
	TierFees       []Fee     `koanf:"tier_fees"`

	AlertInterval    time.Duration `koanf:"alert_interval"`
	AlertParallelism int           `koanf:"alert_parallelism"`
	ScoreQueueSize   int           `koanf:"score_queue_size"`

	RescoreQueueSize int           `koanf:"rescore_queue_size"`
	WorkerCount      int           `koanf:"worker_count"`
	JobTimeout       time.Duration `koanf:"job_timeout"`

	// DedupeSize and DedupeTTL bound the notification dedupe window.
	DedupeSize int           `koanf:"dedupe_size"`
	DedupeTTL  time.Duration `koanf:"dedupe_ttl"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		ArtifactDir:      "artifacts",
		ReloadInterval:   30 * time.Second,
		StoreDriver:      StoreMemory,
		TopK:             5,
		Samples:          256,
		TierBoundaries:   []float64{70, 90},
		TierLabels:       []string{"Emerging", "Established", "Elite"},
		TierFees:         []Fee{{Base: 500, PerPoint: 30}, {Base: 2000, PerPoint: 75}, {Base: 5000, PerPoint: 150}},
		AlertInterval:    5 * time.Minute,
		ScoreQueueSize:   10_000,
		RescoreQueueSize: 1_000,
		WorkerCount:      runtime.NumCPU(),
		JobTimeout:       10 * time.Second,
		DedupeSize:       50_000,
		DedupeTTL:        24 * time.Hour,
	}
}
