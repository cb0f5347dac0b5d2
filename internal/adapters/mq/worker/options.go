package worker

import (
	"time"

	"github.com/okian/sphere/pkg/logger"
)

// Option applies a configuration option to a Pool.
type Option func(*Pool)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithJobTimeout bounds a single rescore.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
