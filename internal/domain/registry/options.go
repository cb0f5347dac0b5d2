package registry

import (
	"time"

	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithSource sets where Load and Watch fetch artifacts from.
func WithSource(s Source) Option {
	return func(r *Registry) {
		if s != nil {
			r.source = s
		}
	}
}

// WithCatalog sets the feature catalog artifacts are validated against.
func WithCatalog(c *features.Catalog) Option {
	return func(r *Registry) {
		if c != nil {
			r.catalog = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
