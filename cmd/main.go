package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/sphere/internal/adapters/events"
	"github.com/okian/sphere/internal/adapters/http/api"
	"github.com/okian/sphere/internal/adapters/repository"
	app "github.com/okian/sphere/internal/app"
	"github.com/okian/sphere/internal/config"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/tier"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "sphere exited", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service from cfg and serves HTTP until ctx is done.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	// The service closes the store on Stop; until it starts, run owns it.
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	started := false
	defer func() {
		if started {
			return
		}
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing store", logger.Error(err))
		}
	}()

	source, err := artifactSource(ctx, cfg)
	if err != nil {
		return err
	}

	tiers, err := tier.New(cfg.TierBoundaries, cfg.TierLabels, tier.WithFees(cfg.Fees()...))
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithArtifactSource(source),
		app.WithReloadInterval(cfg.ReloadInterval),
		app.WithTiers(tiers),
		app.WithTopK(cfg.TopK),
		app.WithSamples(cfg.Samples),
		app.WithAlertInterval(cfg.AlertInterval),
		app.WithAlertParallelism(cfg.AlertParallelism),
		app.WithScoreQueueSize(cfg.ScoreQueueSize),
		app.WithRescoreQueueSize(cfg.RescoreQueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithJobTimeout(cfg.JobTimeout),
		app.WithDedupe(cfg.DedupeSize, cfg.DedupeTTL),
	}

	var conn *nats.Conn
	if cfg.NATSURL != "" {
		conn, err = events.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		pub := events.NewPublisher(conn,
			events.WithAlertSubject(cfg.AlertSubject),
			events.WithScoreSubject(cfg.ScoreSubject),
			events.WithRateLimit(cfg.NotifyRate, cfg.NotifyBurst),
			events.WithScoreRateLimit(cfg.ScoreRate, cfg.ScoreBurst),
		)
		opts = append(opts, app.WithNotificationSink(pub), app.WithScorePublisher(pub))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	started = true
	defer svc.Stop()

	if conn != nil {
		sub := events.NewProfileSubscriber(conn, cfg.ProfileSubject, svc, log.Named("profile-subscriber"))
		if err := sub.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sub.Stop() }()
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, api.WithLogger(log.Named("api"))).Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore picks the backend named by the config.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return repository.Open(ctx, repository.SQLite, cfg.StoreDSN)
	case config.StorePostgres:
		return repository.Open(ctx, repository.Postgres, cfg.StoreDSN)
	default:
		return repository.NewMemoryStore(), nil
	}
}

// artifactSource prefers the bucket when one is configured.
func artifactSource(ctx context.Context, cfg *config.Config) (registry.Source, error) {
	if cfg.ArtifactBucket != "" {
		return registry.DialS3Source(ctx, cfg.ArtifactBucket, cfg.ArtifactPrefix, cfg.ArtifactRegion, cfg.ArtifactEndpoint)
	}
	return registry.NewDirSource(cfg.ArtifactDir), nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
