package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/sphere/internal/domain/tier"
)

// Env names.
const (
	EnvPrefix = "SPHERE_"
	EnvFile   = "SPHERE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SPHERE_CONFIG is set
//  3. env (prefix SPHERE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SPHERE_STORE_DSN -> store_dsn. Keys are flat, underscores are kept.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The file path itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.Samples <= 0 {
		errs = append(errs, fmt.Errorf("samples must be positive, got %d", c.Samples))
	}
	if _, err := tier.New(c.TierBoundaries, c.TierLabels); err != nil {
		errs = append(errs, err)
	} else if len(c.TierFees) > 0 {
		if len(c.TierFees) != len(c.TierLabels) {
			errs = append(errs, fmt.Errorf("tier_fees needs %d entries, got %d", len(c.TierLabels), len(c.TierFees)))
		} else if _, err := tier.New(c.TierBoundaries, c.TierLabels, tier.WithFees(c.Fees()...)); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("store_dsn is required for %s", c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownStoreDriver, c.StoreDriver))
	}
	if c.AlertInterval <= 0 {
		errs = append(errs, fmt.Errorf("alert_interval must be positive, got %s", c.AlertInterval))
	}
	if c.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("reload_interval must not be negative, got %s", c.ReloadInterval))
	}
	if c.ArtifactBucket == "" && c.ArtifactDir == "" {
		errs = append(errs, errors.New("one of artifact_dir or artifact_bucket is required"))
	}
	if c.NotifyRate < 0 {
		errs = append(errs, fmt.Errorf("notify_rate must not be negative, got %g", c.NotifyRate))
	}
	if c.ScoreRate < 0 {
		errs = append(errs, fmt.Errorf("score_rate must not be negative, got %g", c.ScoreRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Fees converts the fee schedule for the tier classifier.
func (c *Config) Fees() []tier.Fee {
	out := make([]tier.Fee, len(c.TierFees))
	for i, f := range c.TierFees {
		out[i] = tier.Fee{Base: f.Base, PerPoint: f.PerPoint}
	}
	return out
}
