package service

import (
	"time"

	"github.com/okian/sphere/internal/adapters/repository"
	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/tier"
	"github.com/okian/sphere/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the profile and rule store. Defaults to an in-memory store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithArtifactSource sets where the registry reads artifacts from.
func WithArtifactSource(src registry.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithReloadInterval sets the artifact poll interval. Zero disables polling.
func WithReloadInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.reloadInterval = d
		}
	}
}

// WithNotificationSink sets the downstream alert sink. Events reach it
// through a dedupe wrapper.
func WithNotificationSink(sink alerting.NotificationSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.notify = sink
		}
	}
}

// WithScorePublisher mirrors every computed score to an external stream.
func WithScorePublisher(p ScorePublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.scorePub = p
		}
	}
}

// WithTiers sets the tier classifier.
func WithTiers(c *tier.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.tiers = c
		}
	}
}

// WithTopK sets how many contributions each attribution side keeps.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithSamples sets the permutation count of the sampling decomposer.
func WithSamples(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.samples = n
		}
	}
}

// WithAlertInterval sets how often the scheduler runs an alert cycle.
func WithAlertInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.alertInterval = d
		}
	}
}

// WithAlertParallelism bounds concurrent rule evaluations.
func WithAlertParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.alertParallelism = n
		}
	}
}

// WithScoreQueueSize bounds the pending score stream.
func WithScoreQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoreQueueSize = n
		}
	}
}

// WithRescoreQueueSize bounds the rescore queue.
func WithRescoreQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rescoreQueueSize = n
		}
	}
}

// WithWorkerCount sets the number of rescore workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithJobTimeout bounds one rescore.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithDedupe sizes the notification dedupe window.
func WithDedupe(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.dedupeSize = size
		if ttl >= 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
