// Package events connects the core to NATS: alert events and score updates
// go out, profile change signals come in.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

// Default subjects.
const (
	DefaultAlertSubject   = "sphere.alerts"
	DefaultScoreSubject   = "sphere.scores"
	DefaultProfileSubject = "sphere.profiles.changed"
)

// Connect dials NATS with unlimited reconnects.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("sphere"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAlertSubject sets the subject prefix for alert events; the owner id is
// appended as the last token.
func WithAlertSubject(s string) PublisherOption {
	return func(p *Publisher) {
		if s != "" {
			p.alertSubject = s
		}
	}
}

// WithScoreSubject sets the subject prefix for score updates; the metric is
// appended as the last token.
func WithScoreSubject(s string) PublisherOption {
	return func(p *Publisher) {
		if s != "" {
			p.scoreSubject = s
		}
	}
}

// WithRateLimit paces alert notifications to perSecond with the given burst.
// Score updates are paced separately, see WithScoreRateLimit.
func WithRateLimit(perSecond float64, burst int) PublisherOption {
	return func(p *Publisher) {
		if l := newLimiter(perSecond, burst); l != nil {
			p.alertLimiter = l
		}
	}
}

// WithScoreRateLimit paces score updates. Scores are published on the
// request path, so they never wait behind an alert burst.
func WithScoreRateLimit(perSecond float64, burst int) PublisherOption {
	return func(p *Publisher) {
		if l := newLimiter(perSecond, burst); l != nil {
			p.scoreLimiter = l
		}
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}

// Publisher publishes JSON messages on an existing connection.
type Publisher struct {
	conn         *nats.Conn
	alertSubject string
	scoreSubject string
	alertLimiter *rate.Limiter
	scoreLimiter *rate.Limiter
}

// NewPublisher wraps conn. The caller keeps ownership of conn.
func NewPublisher(conn *nats.Conn, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		conn:         conn,
		alertSubject: DefaultAlertSubject,
		scoreSubject: DefaultScoreSubject,
		alertLimiter: rate.NewLimiter(rate.Inf, 1),
		scoreLimiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an alert event to <alert subject>.<owner>.
func (p *Publisher) Publish(ctx context.Context, e model.AlertEvent) error {
	return p.send(ctx, p.alertLimiter, p.alertSubject+"."+token(e.OwnerID), e)
}

// PublishScore sends a score update to <score subject>.<metric>.
func (p *Publisher) PublishScore(ctx context.Context, u model.ScoreUpdate) error {
	return p.send(ctx, p.scoreLimiter, p.scoreSubject+"."+token(string(u.Metric)), u)
}

func (p *Publisher) send(ctx context.Context, limiter *rate.Limiter, subject string, v any) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// token makes s safe to use as one subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Enqueuer accepts profile changes, typically the rescore queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, change model.ProfileChange) bool
}

// ProfileSubscriber feeds profile change messages into a queue.
type ProfileSubscriber struct {
	conn    *nats.Conn
	subject string
	queue   Enqueuer
	logger  logger.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewProfileSubscriber creates a subscriber for subject.
func NewProfileSubscriber(conn *nats.Conn, subject string, q Enqueuer, l logger.Logger) *ProfileSubscriber {
	if subject == "" {
		subject = DefaultProfileSubject
	}
	if l == nil {
		l = logger.Get().Named("profile-subscriber")
	}
	return &ProfileSubscriber{conn: conn, subject: subject, queue: q, logger: l}
}

// Start subscribes. Malformed messages are logged and dropped; a full queue
// drops the signal, which the next change for that profile repeats.
func (s *ProfileSubscriber) Start(ctx context.Context) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		var change model.ProfileChange
		if err := json.Unmarshal(msg.Data, &change); err != nil || change.PlatformID == "" {
			s.logger.Warn(ctx, "dropping malformed profile change",
				logger.String("subject", msg.Subject),
				logger.Int("bytes", len(msg.Data)),
				logger.Error(err))
			return
		}
		if change.At.IsZero() {
			change.At = time.Now()
		}
		if !s.queue.Enqueue(ctx, change) {
			s.logger.Warn(ctx, "rescore queue full, dropping profile change",
				logger.String("platform_id", change.PlatformID))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.subject, err)
	}
	// Flush so the subscription is registered before messages are published
	// on other connections.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Stop unsubscribes.
func (s *ProfileSubscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}
