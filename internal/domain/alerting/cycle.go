package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// AlertStore owns rule state. Save must reject a rule whose Version no longer
// matches the stored one with ErrVersionConflict, and return the stored rule
// with its new Version otherwise.
type AlertStore interface {
	ListRules(ctx context.Context) ([]model.AlertRule, error)
	Save(ctx context.Context, rule model.AlertRule) (model.AlertRule, error)
}

// NotificationSink delivers fired events.
type NotificationSink interface {
	Publish(ctx context.Context, event model.AlertEvent) error
}

// Report summarizes one store-backed cycle.
type Report struct {
	ID              string
	Rules           int
	Evaluated       int
	Skipped         int
	Invalid         int
	Fired           int
	Conflicts       int
	SaveFailures    int
	PublishFailures int
	Events          []model.AlertEvent
	Duration        time.Duration
}

// Cycle ties the engine to the rule store and the notification sink.
type Cycle struct {
	engine *Engine
	store  AlertStore
	sink   NotificationSink
	logger logger.Logger
}

// NewCycle creates a store-backed cycle.
func NewCycle(engine *Engine, store AlertStore, sink NotificationSink, l logger.Logger) *Cycle {
	if l == nil {
		l = logger.Get().Named("alert-cycle")
	}
	return &Cycle{engine: engine, store: store, sink: sink, logger: l}
}

// Run evaluates every stored rule against snapshot.
//
// A changed rule is saved before its events are published. If the save loses
// to a concurrent user edit the edit wins: the transition and its events are
// dropped and the rule stays as the user left it.
func (c *Cycle) Run(ctx context.Context, snapshot []model.ScoreUpdate) (Report, error) {
	start := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	rep := Report{ID: id.String()}
	log := c.logger.With(logger.String("cycle", rep.ID))

	rules, err := c.store.ListRules(ctx)
	if err != nil {
		metrics.RecordAlertCycle("list_failed", 0, msSince(start))
		return rep, fmt.Errorf("list alert rules: %w", err)
	}
	rep.Rules = len(rules)

	outcomes, cerr := c.engine.Evaluate(ctx, rules, snapshot)
	for _, o := range outcomes {
		if o.Skipped {
			rep.Skipped++
			continue
		}
		rep.Evaluated++
		if o.Err != nil {
			rep.Invalid++
		}
		if !o.Changed {
			continue
		}
		if _, err := c.store.Save(ctx, o.Rule); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				rep.Conflicts++
				metrics.RecordAlertConflict()
				log.Info(ctx, "rule edited during cycle, dropping transition",
					logger.String("rule", o.Rule.ID),
					logger.Int("dropped_events", len(o.Events)))
				continue
			}
			rep.SaveFailures++
			log.Error(ctx, "save alert rule", logger.String("rule", o.Rule.ID), logger.Error(err))
			continue
		}
		for _, ev := range o.Events {
			rep.Fired++
			rep.Events = append(rep.Events, ev)
			if err := c.sink.Publish(ctx, ev); err != nil {
				rep.PublishFailures++
				metrics.RecordNotification("failed")
				log.Error(ctx, "publish alert event",
					logger.String("rule", ev.RuleID),
					logger.String("event", ev.ID),
					logger.Error(err))
				continue
			}
			metrics.RecordNotification("published")
		}
	}

	rep.Duration = time.Since(start)
	outcome := "ok"
	if cerr != nil {
		outcome = "cancelled"
	}
	metrics.RecordAlertCycle(outcome, rep.Rules, msSince(start))
	metrics.RecordAlertFired(rep.Fired)
	log.Info(ctx, "alert cycle finished",
		logger.Int("rules", rep.Rules),
		logger.Int("evaluated", rep.Evaluated),
		logger.Int("fired", rep.Fired),
		logger.Int("invalid", rep.Invalid),
		logger.Int("conflicts", rep.Conflicts),
		logger.Duration("took", rep.Duration))
	return rep, cerr
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
