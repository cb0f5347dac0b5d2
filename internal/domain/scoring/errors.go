package scoring

import (
	"errors"
	"fmt"
)

// Scoring errors.
var (
	ErrFeatureSchemaMismatch = errors.New("feature schema mismatch")
	ErrAttributionTolerance  = errors.New("attribution tolerance exceeded")
	ErrNotAdditive           = errors.New("model is not additive")
	ErrNonFinitePrediction   = errors.New("prediction is not finite")
)

// SchemaMismatchError names both sides of a rejected vector.
type SchemaMismatchError struct {
	Kind     string
	Vector   string
	Artifact string
	Detail   string
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("scoring %s: vector schema %q, artifact expects %q", e.Kind, e.Vector, e.Artifact)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap lets callers match with errors.Is(err, ErrFeatureSchemaMismatch).
func (e *SchemaMismatchError) Unwrap() error { return ErrFeatureSchemaMismatch }
