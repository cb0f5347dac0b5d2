package scoring

import "github.com/okian/sphere/pkg/logger"

// Default engine configuration.
const (
	DefaultTopK    = 5
	DefaultSamples = 256
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTopK sets how many positive and negative contributions are surfaced.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithSamples sets the permutation count of the sampling decomposer.
func WithSamples(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sampling = Sampling{Permutations: n}
		}
	}
}

// WithDecomposer forces one strategy for every artifact.
func WithDecomposer(d Decomposer) Option {
	return func(e *Engine) {
		if d != nil {
			e.forced = d
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
