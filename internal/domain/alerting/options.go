package alerting

import (
	"runtime"
	"time"

	"github.com/okian/sphere/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithParallelism caps how many rules are evaluated at once.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithClock overrides time.Now for cooldown expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func defaultParallelism() int { return runtime.GOMAXPROCS(0) }
