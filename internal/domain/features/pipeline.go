package features

import (
	"fmt"
	"math"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/metrics"
)

// Entity is the raw input to a build. Either side may be nil; slots that need
// the missing side fall back to their imputation rule.
type Entity struct {
	Profile *model.InfluencerProfile
	Draft   *model.ContentDraft
}

// ID names the entity in errors.
func (e Entity) ID() string {
	if e.Profile != nil {
		return e.Profile.PlatformID
	}
	return ""
}

// Vector is a built feature vector. Names and Values are parallel and follow
// schema slot order.
type Vector struct {
	SchemaVersion string
	Names         []string
	Values        []float64
	// Imputed lists slots whose value came from the imputation rule.
	Imputed []string
}

// Len returns the number of slots.
func (v Vector) Len() int { return len(v.Values) }

// Get returns the value of name.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Map returns a name to value copy.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		out[n] = v.Values[i]
	}
	return out
}

// Build derives a vector for e with the default catalog.
func Build(e Entity, schemaVersion string) (Vector, error) {
	return defaultCatalog.Build(e, schemaVersion)
}

// Build derives every slot of schemaVersion from e. It is pure; the same
// entity state and version always give a bit-identical vector.
func (c *Catalog) Build(e Entity, schemaVersion string) (Vector, error) {
	s, err := c.Lookup(schemaVersion)
	if err != nil {
		metrics.RecordFeatureBuild(schemaVersion, "unknown_schema")
		return Vector{}, err
	}
	v := Vector{
		SchemaVersion: s.Version,
		Names:         s.Names(),
		Values:        make([]float64, len(s.Slots)),
	}
	for i, sl := range s.Slots {
		x, ok := sl.derive(e)
		if ok && !isFinite(x) {
			ok = false
		}
		if !ok {
			x, ok = impute(sl, e)
			if !ok {
				metrics.RecordFeatureBuild(s.Version, "missing_data")
				metrics.RecordMissingData(s.Version, sl.Name)
				return Vector{}, &MissingDataError{Slot: sl.Name, SchemaVersion: s.Version, EntityID: e.ID()}
			}
			v.Imputed = append(v.Imputed, sl.Name)
		}
		if err := checkType(sl, x); err != nil {
			metrics.RecordFeatureBuild(s.Version, "invalid_value")
			return Vector{}, fmt.Errorf("%s %s: %w", s.Version, e.ID(), err)
		}
		v.Values[i] = x
	}
	metrics.RecordFeatureBuild(s.Version, "ok")
	return v, nil
}

func impute(sl Slot, e Entity) (float64, bool) {
	switch sl.Imputation.Rule {
	case ImputeConstant:
		return sl.Imputation.Value, true
	case ImputeMean:
		var sum float64
		var n int
		for _, x := range sl.samples(e) {
			if isFinite(x) {
				sum += x
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	default:
		return 0, false
	}
}

func checkType(sl Slot, x float64) error {
	switch sl.Type {
	case TypeInt:
		if x < 0 || x != math.Trunc(x) {
			return fmt.Errorf("%w: %s=%v is not a count", ErrInvalidValue, sl.Name, x)
		}
	case TypeBool:
		if x != 0 && x != 1 {
			return fmt.Errorf("%w: %s=%v is not 0 or 1", ErrInvalidValue, sl.Name, x)
		}
	}
	return nil
}

func isFinite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
