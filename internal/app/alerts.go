package service

import (
	"context"
	"time"

	"github.com/okian/sphere/internal/adapters/repository"
	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

// RunAlertCycle evaluates rules against snapshot without touching the store
// and returns the events that fired. Malformed rules are skipped.
func (s *Service) RunAlertCycle(ctx context.Context, rules []model.AlertRule, snapshot []model.ScoreUpdate) []model.AlertEvent {
	events, _ := s.alerts.RunCycle(ctx, rules, snapshot)
	return events
}

// RunStoredCycle evaluates every stored rule, persists transitions and
// publishes the events. An empty snapshot drains the pending score stream;
// the cycle still runs so expired cooldowns re-arm.
//
// Stored cycles run one at a time. Drained updates that a cycle could not
// show to every rule, because listing failed or the cycle was cancelled,
// are carried into the next drain ahead of newer updates.
func (s *Service) RunStoredCycle(ctx context.Context, snapshot []model.ScoreUpdate) (alerting.Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	drained := len(snapshot) == 0
	if drained {
		snapshot = append(s.carry, s.scores.Drain(0)...)
		s.carry = nil
		s.carried.Store(0)
	}
	rep, err := s.cycle.Run(ctx, snapshot)
	if drained && err != nil && len(snapshot) > 0 && (rep.Evaluated == 0 || rep.Skipped > 0) {
		s.keep(ctx, snapshot)
	}
	return rep, err
}

// keep holds updates for the next stored cycle, bounded by the score queue
// capacity. The oldest updates go first when the bound is hit.
func (s *Service) keep(ctx context.Context, updates []model.ScoreUpdate) {
	if over := len(updates) - s.scores.Capacity(); over > 0 {
		s.logger.Warn(ctx, "dropping carried score updates", logger.Int("dropped", over))
		updates = updates[over:]
	}
	s.carry = updates
	s.carried.Store(int64(len(updates)))
	s.logger.Info(ctx, "score updates carried to next alert cycle", logger.Int("updates", len(updates)))
}

// schedule runs a stored cycle every alert interval until ctx is done.
func (s *Service) schedule(ctx context.Context) {
	ticker := time.NewTicker(s.alertInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunStoredCycle(ctx, nil); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "scheduled alert cycle", logger.Error(err))
			}
		}
	}
}

// CreateRule stores a new alert rule.
func (s *Service) CreateRule(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	return s.store.Create(ctx, rule)
}

// ListRules returns every stored rule.
func (s *Service) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	return s.store.ListRules(ctx)
}

// GetRule returns one rule.
func (s *Service) GetRule(ctx context.Context, id string) (model.AlertRule, error) {
	return s.store.GetRule(ctx, id)
}

// EditRule applies a user edit. The edit re-arms the rule and wins over a
// concurrent evaluation.
func (s *Service) EditRule(ctx context.Context, id string, edit model.RuleEdit) (model.AlertRule, error) {
	r, err := repository.EditRule(ctx, s.store, id, edit, s.now())
	if err != nil {
		return model.AlertRule{}, err
	}
	s.logger.Info(ctx, "alert rule edited",
		logger.String("rule", r.ID),
		logger.Int64("version", r.Version))
	return r, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
