package events

import (
	"context"
	"fmt"

	"github.com/okian/sphere/internal/domain/dedupe"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

// Sink is the notification sink contract.
type Sink interface {
	Publish(ctx context.Context, e model.AlertEvent) error
}

// DedupeSink forwards each event id at most once. A failed publish forgets
// the id so a retry can go through.
type DedupeSink struct {
	next Sink
	seen dedupe.Deduper
}

// NewDedupeSink wraps next.
func NewDedupeSink(next Sink, seen dedupe.Deduper) *DedupeSink {
	return &DedupeSink{next: next, seen: seen}
}

// Publish implements Sink.
func (s *DedupeSink) Publish(ctx context.Context, e model.AlertEvent) error {
	if s.seen.SeenAndRecord(ctx, e.ID) {
		return nil
	}
	if err := s.next.Publish(ctx, e); err != nil {
		s.seen.Unrecord(ctx, e.ID)
		return fmt.Errorf("event %s: %w", e.ID, err)
	}
	return nil
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("alerts")
	}
	return &LogSink{logger: l}
}

// Publish implements Sink.
func (s *LogSink) Publish(ctx context.Context, e model.AlertEvent) error {
	s.logger.Info(ctx, "alert fired",
		logger.String("event", e.ID),
		logger.String("rule", e.RuleID),
		logger.String("owner", e.OwnerID),
		logger.String("platform_id", e.Snapshot.PlatformID),
		logger.Float64("value", e.Snapshot.Value),
		logger.Time("fired_at", e.FiredAt),
		logger.String("message", e.Message))
	return nil
}

// PublishScore implements the score stream publisher by logging at debug.
func (s *LogSink) PublishScore(ctx context.Context, u model.ScoreUpdate) error {
	s.logger.Debug(ctx, "score updated",
		logger.String("platform_id", u.PlatformID),
		logger.String("metric", string(u.Metric)),
		logger.Float64("value", u.Value))
	return nil
}
