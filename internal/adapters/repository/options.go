package repository

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/okian/sphere/pkg/logger"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now    func() time.Time
	newID  func() (string, error)
	logger logger.Logger
}

func defaults() options {
	return options{
		now:   time.Now,
		newID: func() (string, error) { return gonanoid.New() },
	}
}

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides rule id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
