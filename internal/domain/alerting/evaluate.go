// Package alerting runs per-rule threshold state machines over score updates.
package alerting

import (
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sphere/internal/domain/model"
)

// eventNamespace scopes alert event ids.
var eventNamespace = uuid.MustParse("6f1c7a52-3f0e-4b59-9d7e-2a8c4e1b9d30")

// EventID derives a stable id from the rule and the firing instant, so a
// republished event carries the same id.
func EventID(ruleID string, firedAt time.Time) string {
	return uuid.NewSHA1(eventNamespace, []byte(ruleID+"|"+firedAt.UTC().Format(time.RFC3339Nano))).String()
}

// Validate checks everything Evaluate needs from a rule.
func Validate(r model.AlertRule) (Selector, error) {
	sel, err := ParseSelector(r.Target)
	if err != nil {
		return Selector{}, err
	}
	if !r.Operator.Valid() {
		return Selector{}, fmt.Errorf("%w: %q", ErrUnknownOperator, r.Operator)
	}
	if !r.Metric.Valid() {
		return Selector{}, fmt.Errorf("%w: %q", ErrUnknownMetric, r.Metric)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return Selector{}, ErrInvalidThreshold
	}
	if r.Cooldown < 0 {
		return Selector{}, fmt.Errorf("%w: %s", ErrInvalidCooldown, r.Cooldown)
	}
	return sel, nil
}

// holds applies op. Crossing operators need a previous value for the same
// target, so a first observation never crosses.
func holds(op model.Operator, threshold, prev float64, hasPrev bool, cur float64) bool {
	switch op {
	case model.OpGreaterOrEqual:
		return cur >= threshold
	case model.OpLessOrEqual:
		return cur <= threshold
	case model.OpCrossesAbove:
		return hasPrev && prev < threshold && cur >= threshold
	case model.OpCrossesBelow:
		return hasPrev && prev > threshold && cur <= threshold
	}
	return false
}

type evaluation struct {
	rule       model.AlertRule
	events     []model.AlertEvent
	suppressed int
	err        error
}

// Evaluate advances one rule over updates in arrival order, then expires its
// cooldown against now. It is pure: the input rule is not modified.
//
// A malformed rule comes back marked invalid with an *EvaluationError.
// Rules already marked invalid are returned unchanged until edited.
func Evaluate(rule model.AlertRule, updates []model.ScoreUpdate, now time.Time) (model.AlertRule, []model.AlertEvent, error) {
	ev := evaluate(rule, updates, now)
	return ev.rule, ev.events, ev.err
}

func evaluate(rule model.AlertRule, updates []model.ScoreUpdate, now time.Time) evaluation {
	out := rule.Clone()
	if out.Invalid {
		return evaluation{rule: out}
	}
	sel, err := Validate(out)
	if err != nil {
		out.Invalid = true
		out.InvalidReason = err.Error()
		return evaluation{rule: out, err: &EvaluationError{RuleID: rule.ID, Err: err}}
	}
	if out.State == "" || out.State == model.StateFired {
		// FIRED never outlives a transition; a persisted one is treated as
		// the cooldown it was about to enter.
		if out.State == model.StateFired {
			out.State = model.StateCooldown
		} else {
			out.State = model.StateArmed
		}
	}
	if out.LastValues == nil {
		out.LastValues = map[string]float64{}
	}

	ev := evaluation{}
	for _, u := range updates {
		if u.Metric != out.Metric || !sel.Matches(u) {
			continue
		}
		// An unstamped update is observed at the cycle time, so a firing
		// always opens a real cooldown window.
		if u.At.IsZero() {
			u.At = now
		}
		expire(&out, u.At)

		prev, hasPrev := out.LastValues[u.PlatformID]
		cond := holds(out.Operator, out.Threshold, prev, hasPrev, u.Value)
		out.LastValues[u.PlatformID] = u.Value
		if !cond {
			continue
		}
		if out.State != model.StateArmed {
			ev.suppressed++
			continue
		}

		out.State = model.StateFired
		ev.events = append(ev.events, newEvent(out, u))
		out.State = model.StateCooldown
		out.CooldownUntil = u.At.Add(out.Cooldown)
	}
	expire(&out, now)
	ev.rule = out
	return ev
}

// expire re-arms a cooling rule once at reaches CooldownUntil.
func expire(r *model.AlertRule, at time.Time) {
	if r.State == model.StateCooldown && !at.IsZero() && !at.Before(r.CooldownUntil) {
		r.State = model.StateArmed
		r.CooldownUntil = time.Time{}
	}
}

func newEvent(r model.AlertRule, u model.ScoreUpdate) model.AlertEvent {
	snap := u
	snap.NicheTags = append([]string(nil), u.NicheTags...)
	return model.AlertEvent{
		ID:       EventID(r.ID, u.At),
		RuleID:   r.ID,
		OwnerID:  r.OwnerID,
		Snapshot: snap,
		FiredAt:  u.At,
		Message: fmt.Sprintf("%s %s %s %g (now %.2f)",
			u.PlatformID, u.Metric, strings.ReplaceAll(string(r.Operator), "_", " "), r.Threshold, u.Value),
	}
}

// stateChanged reports whether evaluation moved any persisted state.
func stateChanged(before, after model.AlertRule) bool {
	return before.State != after.State ||
		!before.CooldownUntil.Equal(after.CooldownUntil) ||
		before.Invalid != after.Invalid ||
		before.InvalidReason != after.InvalidReason ||
		!maps.Equal(before.LastValues, after.LastValues)
}
