package alerting

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// Outcome is the result of evaluating one rule in a cycle.
type Outcome struct {
	Rule    model.AlertRule
	Events  []model.AlertEvent
	Changed bool
	// Err is an *EvaluationError for malformed rules.
	Err error
	// Skipped is set when the cycle was cancelled before the rule ran.
	Skipped bool
}

// Engine evaluates rule sets in parallel. Rules never share state, so one
// rule's failure cannot affect another.
type Engine struct {
	parallelism int
	now         func() time.Time
	logger      logger.Logger
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		parallelism: defaultParallelism(),
		now:         time.Now,
		logger:      logger.Get().Named("alerting"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule against snapshot. Outcomes are in rule order.
// Cancellation is checked before each rule starts; rules not started are
// returned unchanged with Skipped set, together with ctx's error.
func (e *Engine) Evaluate(ctx context.Context, rules []model.AlertRule, snapshot []model.ScoreUpdate) ([]Outcome, error) {
	now := e.now()
	out := make([]Outcome, len(rules))

	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)
	for i := range rules {
		if ctx.Err() != nil {
			for j := i; j < len(rules); j++ {
				out[j] = Outcome{Rule: rules[j].Clone(), Skipped: true}
			}
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = Outcome{Rule: rules[i].Clone(), Skipped: true}
				return nil
			}
			out[i] = e.evaluateOne(ctx, rules[i], snapshot, now)
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

func (e *Engine) evaluateOne(ctx context.Context, rule model.AlertRule, snapshot []model.ScoreUpdate, now time.Time) Outcome {
	ev := evaluate(rule, snapshot, now)
	o := Outcome{
		Rule:    ev.rule,
		Events:  ev.events,
		Changed: stateChanged(rule, ev.rule),
		Err:     ev.err,
	}
	if ev.err != nil {
		var ee *EvaluationError
		if errors.As(ev.err, &ee) {
			metrics.RecordAlertRuleError(reason(ee.Err))
		}
		e.logger.Warn(ctx, "alert rule marked invalid",
			logger.String("rule", rule.ID),
			logger.String("target", rule.Target),
			logger.Error(ev.err))
	}
	if ev.suppressed > 0 {
		e.logger.Debug(ctx, "condition held during cooldown",
			logger.String("rule", rule.ID),
			logger.Int("suppressed", ev.suppressed),
			logger.Time("cooldown_until", ev.rule.CooldownUntil))
	}
	return o
}

// RunCycle evaluates rules against a score snapshot and returns the events
// fired and every rule's next state, in input order.
func (e *Engine) RunCycle(ctx context.Context, rules []model.AlertRule, snapshot []model.ScoreUpdate) ([]model.AlertEvent, []model.AlertRule) {
	outcomes, _ := e.Evaluate(ctx, rules, snapshot)
	var events []model.AlertEvent
	next := make([]model.AlertRule, len(outcomes))
	for i, o := range outcomes {
		next[i] = o.Rule
		events = append(events, o.Events...)
	}
	return events, next
}
