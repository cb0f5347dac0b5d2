// Package features turns raw profiles and content drafts into versioned,
// model-ready feature vectors.
package features

import (
	"fmt"

	"github.com/okian/sphere/internal/domain/model"
)

// ValueType is the declared numeric type of a slot.
type ValueType string

// Slot value types.
const (
	TypeFloat ValueType = "float"
	TypeInt   ValueType = "int"  // non-negative integer
	TypeBool  ValueType = "bool" // 0 or 1
)

// ImputationRule decides what happens when a slot's raw inputs are absent.
type ImputationRule string

// Imputation rules.
const (
	ImputeConstant ImputationRule = "constant"
	ImputeMean     ImputationRule = "mean"
	ImputeFail     ImputationRule = "fail"
)

// Imputation is a slot's missing-data policy. Value is used by ImputeConstant.
type Imputation struct {
	Rule  ImputationRule
	Value float64
}

// deriveFunc computes a slot value; ok=false means the raw inputs are absent.
type deriveFunc func(e Entity) (v float64, ok bool)

// samplesFunc returns the per-observation values averaged by ImputeMean.
type samplesFunc func(e Entity) []float64

// Slot is one named, typed position in a schema.
type Slot struct {
	Name       string
	Type       ValueType
	Imputation Imputation

	derive  deriveFunc
	samples samplesFunc
}

// Schema is a versioned, ordered list of slots. Version strings are unique
// across kinds, so equality of versions implies equality of layout.
type Schema struct {
	Version string
	Kind    model.Metric
	Slots   []Slot
}

// Names returns the slot names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Slots))
	for i, sl := range s.Slots {
		out[i] = sl.Name
	}
	return out
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, sl := range s.Slots {
		if sl.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) validate() error {
	if s.Version == "" {
		return fmt.Errorf("%w: empty version", ErrInvalidSchema)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidSchema, s.Version, s.Kind)
	}
	if len(s.Slots) == 0 {
		return fmt.Errorf("%w: %s has no slots", ErrInvalidSchema, s.Version)
	}
	seen := make(map[string]struct{}, len(s.Slots))
	for _, sl := range s.Slots {
		if sl.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed slot", ErrInvalidSchema, s.Version)
		}
		if _, dup := seen[sl.Name]; dup {
			return fmt.Errorf("%w: %s declares %q twice", ErrInvalidSchema, s.Version, sl.Name)
		}
		seen[sl.Name] = struct{}{}
		if sl.derive == nil {
			return fmt.Errorf("%w: %s slot %q has no derivation", ErrInvalidSchema, s.Version, sl.Name)
		}
		switch sl.Imputation.Rule {
		case ImputeConstant, ImputeFail:
		case ImputeMean:
			if sl.samples == nil {
				return fmt.Errorf("%w: %s slot %q imputes by mean without samples", ErrInvalidSchema, s.Version, sl.Name)
			}
		default:
			return fmt.Errorf("%w: %s slot %q has rule %q", ErrInvalidSchema, s.Version, sl.Name, sl.Imputation.Rule)
		}
	}
	return nil
}
