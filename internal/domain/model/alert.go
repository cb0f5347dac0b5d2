package model

import "time"

// Operator is the comparison an alert rule applies to a score.
type Operator string

// Supported operators.
const (
	OpGreaterOrEqual Operator = "gte"
	OpLessOrEqual    Operator = "lte"
	OpCrossesAbove   Operator = "crosses_above"
	OpCrossesBelow   Operator = "crosses_below"
)

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreaterOrEqual, OpLessOrEqual, OpCrossesAbove, OpCrossesBelow:
		return true
	}
	return false
}

// NeedsPrevious reports whether op compares against the previous value.
func (op Operator) NeedsPrevious() bool {
	return op == OpCrossesAbove || op == OpCrossesBelow
}

// AlertState is the rule's position in its threshold state machine.
type AlertState string

// Rule states.
const (
	StateArmed    AlertState = "ARMED"
	StateFired    AlertState = "FIRED"
	StateCooldown AlertState = "COOLDOWN"
)

// AlertRule is a brand user's threshold on an influencer or a niche.
type AlertRule struct {
	ID        string
	OwnerID   string
	Target    string // "influencer:<platform_id>" or "niche:<tag>"
	Metric    Metric
	Operator  Operator
	Threshold float64
	Cooldown  time.Duration

	State         AlertState
	CooldownUntil time.Time
	// LastValues holds the previous score per platform id, needed by the
	// crossing operators.
	LastValues map[string]float64

	Invalid       bool
	InvalidReason string

	// Version increases on every save and gates optimistic writes.
	Version   int64
	UpdatedAt time.Time
}

// Clone returns a deep copy of the rule.
func (r AlertRule) Clone() AlertRule {
	c := r
	if r.LastValues != nil {
		c.LastValues = make(map[string]float64, len(r.LastValues))
		for k, v := range r.LastValues {
			c.LastValues[k] = v
		}
	}
	return c
}

// RuleEdit carries user changes to a rule. Nil fields are left untouched.
type RuleEdit struct {
	Target    *string
	Metric    *Metric
	Operator  *Operator
	Threshold *float64
	Cooldown  *time.Duration
}

// Edit applies a user edit. Any edit re-arms the rule and clears its
// evaluation history and invalid flag.
func (r AlertRule) Edit(e RuleEdit, at time.Time) AlertRule {
	c := r.Clone()
	if e.Target != nil {
		c.Target = *e.Target
	}
	if e.Metric != nil {
		c.Metric = *e.Metric
	}
	if e.Operator != nil {
		c.Operator = *e.Operator
	}
	if e.Threshold != nil {
		c.Threshold = *e.Threshold
	}
	if e.Cooldown != nil {
		c.Cooldown = *e.Cooldown
	}
	c.State = StateArmed
	c.CooldownUntil = time.Time{}
	c.LastValues = nil
	c.Invalid = false
	c.InvalidReason = ""
	c.UpdatedAt = at
	return c
}

// AlertEvent is emitted exactly once per firing. Immutable.
type AlertEvent struct {
	ID       string      `json:"id"`
	RuleID   string      `json:"rule_id"`
	OwnerID  string      `json:"owner_id"`
	Snapshot ScoreUpdate `json:"snapshot"`
	FiredAt  time.Time   `json:"fired_at"`
	Message  string      `json:"message"`
}
