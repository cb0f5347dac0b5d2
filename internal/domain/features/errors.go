package features

import (
	"errors"
	"fmt"
)

// Sentinel kinds for feature pipeline errors.
var (
	ErrMissingData   = errors.New("missing required data")
	ErrUnknownSchema = errors.New("unknown feature schema")
	ErrInvalidSchema = errors.New("invalid feature schema")
	ErrInvalidValue  = errors.New("derived value violates slot type")
)

// MissingDataError reports a slot whose raw inputs were absent and whose
// imputation rule is "fail". It carries enough context to reproduce the
// failure without re-reading the store.
type MissingDataError struct {
	Slot          string
	SchemaVersion string
	EntityID      string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("features: missing data for slot %q (schema %s, entity %q)", e.Slot, e.SchemaVersion, e.EntityID)
}

// Unwrap lets callers match with errors.Is(err, ErrMissingData).
func (e *MissingDataError) Unwrap() error { return ErrMissingData }
