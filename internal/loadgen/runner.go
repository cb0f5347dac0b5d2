package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
)

// Runner executes a load run against one service.
type Runner struct {
	cfg    Config
	client *client
	gen    *Generator
	logger logger.Logger
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Platform == "" {
		cfg.Platform = "instagram"
	}
	return &Runner{
		cfg:    cfg,
		client: newClient(cfg.BaseURL, cfg.Timeout),
		gen:    NewGenerator(cfg.Platform, cfg.Seed),
		logger: logger.Get().Named("loadgen"),
	}
}

// Run ingests generated creators, reads their market values back and
// verifies the answers. It returns the stats even when verification fails.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	r.logger.Info(ctx, "starting load run",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("profiles", r.cfg.Profiles),
		logger.Int("workers", r.cfg.Workers))

	if err := r.waitReady(ctx); err != nil {
		return stats, fmt.Errorf("service readiness check failed: %w", err)
	}

	profiles := r.gen.Profiles(r.cfg.Profiles)
	stats.Generated = len(profiles)
	if err := r.save(ctx, profiles); err != nil {
		r.logger.Warn(ctx, "failed to save profiles", logger.Error(err))
	}

	r.store(ctx, profiles, stats)

	if r.cfg.Settle > 0 {
		r.logger.Info(ctx, "waiting for rescores to settle", logger.Duration("settle", r.cfg.Settle))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(r.cfg.Settle):
		}
	}

	vals := r.value(ctx, profiles, stats)
	stats.Duration = time.Since(stats.StartTime)

	r.logger.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("stored", stats.Stored),
		logger.Int("storeFailures", stats.StoreFails),
		logger.Int("valued", stats.Valued),
		logger.Int("valueFailures", stats.ValueFails),
		logger.Int("missingData", stats.Missing),
		logger.Duration("duration", stats.Duration))

	if err := Verify(vals); err != nil {
		return stats, err
	}
	return stats, nil
}

// waitReady polls /readyz until the service has its artifacts.
func (r *Runner) waitReady(ctx context.Context) error {
	for {
		err := r.client.do(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)
		if err == nil {
			return nil
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// store PUTs every profile with a bounded worker group.
func (r *Runner) store(ctx context.Context, profiles []types.ProfileView, stats *Stats) {
	var stored, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, p := range profiles {
		g.Go(func() error {
			path := "/v1/influencers/" + url.PathEscape(p.PlatformID)
			if err := r.client.do(gctx, http.MethodPut, path, p, nil, http.StatusAccepted); err != nil {
				failed.Add(1)
				r.logger.Debug(gctx, "store failed", logger.String("platform_id", p.PlatformID), logger.Error(err))
				return nil
			}
			stored.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	stats.Stored = int(stored.Load())
	stats.StoreFails = int(failed.Load())
}

// value reads the market value of every profile. Missing-data answers are
// counted apart from failures.
func (r *Runner) value(ctx context.Context, profiles []types.ProfileView, stats *Stats) []Valuation {
	var (
		mu   sync.Mutex
		vals = make([]Valuation, 0, len(profiles))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, p := range profiles {
		g.Go(func() error {
			var v Valuation
			path := "/v1/influencers/" + url.PathEscape(p.PlatformID) + "/market-value"
			err := r.client.do(gctx, http.MethodGet, path, nil, &v, http.StatusOK)

			mu.Lock()
			defer mu.Unlock()
			var se *StatusError
			switch {
			case err == nil:
				stats.Valued++
				vals = append(vals, v)
			case errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity:
				stats.Missing++
			default:
				stats.ValueFails++
				r.logger.Debug(gctx, "valuation failed", logger.String("platform_id", p.PlatformID), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return vals
}

// save writes the generated profiles as one JSON file per run.
func (r *Runner) save(ctx context.Context, profiles []types.ProfileView) error {
	if r.cfg.OutputDir == "" || len(profiles) == 0 {
		return nil
	}
	if err := os.MkdirAll(r.cfg.OutputDir, dirPermission); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := filepath.Join(r.cfg.OutputDir, "profiles_"+time.Now().Format("20060102_150405")+".json")
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := os.WriteFile(name, data, filePermission); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	r.logger.Info(ctx, "profiles saved to file", logger.String("filename", name))
	return nil
}
