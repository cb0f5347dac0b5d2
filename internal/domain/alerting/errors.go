package alerting

import (
	"errors"
	"fmt"
)

// Alerting errors.
var (
	ErrAlertEvaluation   = errors.New("alert rule evaluation failed")
	ErrMalformedSelector = errors.New("malformed target selector")
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrInvalidThreshold  = errors.New("threshold is not finite")
	ErrInvalidCooldown   = errors.New("cooldown is negative")

	// ErrVersionConflict is returned by an AlertStore when the rule changed
	// since it was read.
	ErrVersionConflict = errors.New("alert rule version conflict")
)

// EvaluationError isolates a malformed rule from the rest of the cycle.
type EvaluationError struct {
	RuleID string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("alerting: rule %q: %v", e.RuleID, e.Err)
}

// Unwrap matches both ErrAlertEvaluation and the specific cause.
func (e *EvaluationError) Unwrap() []error { return []error{ErrAlertEvaluation, e.Err} }

// reason returns a short label for metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedSelector):
		return "selector"
	case errors.Is(err, ErrUnknownOperator):
		return "operator"
	case errors.Is(err, ErrUnknownMetric):
		return "metric"
	case errors.Is(err, ErrInvalidThreshold):
		return "threshold"
	case errors.Is(err, ErrInvalidCooldown):
		return "cooldown"
	default:
		return "other"
	}
}
