// Package artifact decodes and validates trained model artifacts. An Artifact
// is immutable once decoded and safe to share between goroutines.
package artifact

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/sphere/internal/domain/features"
)

// Artifact is a validated model bound to its feature schema.
type Artifact struct {
	desc      Descriptor
	schema    features.Schema
	model     Model
	reference []float64
}

// Decode parses a descriptor and its model parameters and validates the pair.
// Nothing is returned unless the artifact is fully usable.
func Decode(descriptor, params []byte, opts ...Option) (*Artifact, error) {
	o := decodeOptions{catalog: features.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	p, err := ParseParams(params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.ModelKind, d.ArtifactVersion, err)
	}
	if !d.ModelKind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.ModelKind)
	}
	s, err := o.catalog.Lookup(d.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %s declares %q", ErrSchemaNotRegistered, d.ModelKind, d.SchemaVersion)
	}
	if s.Kind != d.ModelKind {
		return nil, fmt.Errorf("%w: schema %s belongs to %s, not %s", ErrInvalidArtifact, s.Version, s.Kind, d.ModelKind)
	}
	m, err := compile(p, s)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.ModelKind, d.ArtifactVersion, err)
	}

	a := &Artifact{desc: d, schema: s, model: m}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.ModelKind, d.ArtifactVersion, err)
	}
	return a, nil
}

func (a *Artifact) validate() error {
	d := a.desc
	if d.ArtifactVersion == "" {
		return fmt.Errorf("%w: empty artifact_version", ErrInvalidArtifact)
	}
	if d.AttributionTolerance < 0 || !isFinite(d.AttributionTolerance) {
		return fmt.Errorf("%w: attribution_tolerance %v", ErrInvalidArtifact, d.AttributionTolerance)
	}
	switch d.Decomposer {
	case "", "linear", "sampling":
	default:
		return fmt.Errorf("%w: decomposer %q", ErrInvalidArtifact, d.Decomposer)
	}
	if d.Decomposer == "linear" {
		if _, ok := a.model.Weights(); !ok {
			return fmt.Errorf("%w: linear decomposition requested for a non-additive model", ErrInvalidArtifact)
		}
	}
	if err := validateNormalization(d.Normalization); err != nil {
		return err
	}
	if err := coversExactly(d.Baseline.Features, a.schema, "baseline_reference.features"); err != nil {
		return err
	}
	if !isFinite(d.Baseline.Value) {
		return fmt.Errorf("%w: non-finite baseline", ErrInvalidArtifact)
	}
	a.reference = make([]float64, len(a.schema.Slots))
	for i, sl := range a.schema.Slots {
		a.reference[i] = d.Baseline.Features[sl.Name]
	}
	got := a.model.Predict(a.reference)
	if math.Abs(got-d.Baseline.Value) > 1e-6*math.Max(1, math.Abs(d.Baseline.Value)) {
		return fmt.Errorf("%w: declared %v, f(reference)=%v", ErrBaselineMismatch, d.Baseline.Value, got)
	}
	return nil
}

func validateNormalization(n Normalization) error {
	for _, x := range []float64{n.Min, n.Max, n.Midpoint, n.Scale} {
		if !isFinite(x) {
			return fmt.Errorf("%w: non-finite normalization parameter", ErrInvalidArtifact)
		}
	}
	switch n.Method {
	case NormMinMax:
		if n.Max <= n.Min {
			return fmt.Errorf("%w: minmax needs max > min, got [%v, %v]", ErrInvalidArtifact, n.Min, n.Max)
		}
	case NormSigmoid:
		if n.Scale <= 0 {
			return fmt.Errorf("%w: sigmoid needs scale > 0, got %v", ErrInvalidArtifact, n.Scale)
		}
	default:
		return fmt.Errorf("%w: normalization method %q", ErrInvalidArtifact, n.Method)
	}
	return nil
}

// Kind returns the model kind.
func (a *Artifact) Kind() Kind { return a.desc.ModelKind }

// SchemaVersion returns the feature schema version the model was trained on.
func (a *Artifact) SchemaVersion() string { return a.desc.SchemaVersion }

// Version returns the artifact version.
func (a *Artifact) Version() string { return a.desc.ArtifactVersion }

// TrainedAt returns the training timestamp.
func (a *Artifact) TrainedAt() time.Time { return a.desc.TrainedAt }

// Descriptor returns a copy of the descriptor.
func (a *Artifact) Descriptor() Descriptor {
	d := a.desc
	d.Baseline.Features = make(map[string]float64, len(a.desc.Baseline.Features))
	for k, v := range a.desc.Baseline.Features {
		d.Baseline.Features[k] = v
	}
	return d
}

// Schema returns the bound feature schema.
func (a *Artifact) Schema() features.Schema { return a.schema }

// Model returns the compiled model.
func (a *Artifact) Model() Model { return a.model }

// Baseline returns f(reference).
func (a *Artifact) Baseline() float64 { return a.desc.Baseline.Value }

// Reference returns a copy of the baseline reference point in slot order.
func (a *Artifact) Reference() []float64 {
	out := make([]float64, len(a.reference))
	copy(out, a.reference)
	return out
}

// Tolerance returns the relative attribution tolerance.
func (a *Artifact) Tolerance() float64 {
	if a.desc.AttributionTolerance == 0 {
		return DefaultTolerance
	}
	return a.desc.AttributionTolerance
}

// Decomposer returns the declared attribution strategy, or "" for the default.
func (a *Artifact) Decomposer() string { return a.desc.Decomposer }

// Predict returns the raw prediction for x in slot order.
func (a *Artifact) Predict(x []float64) float64 { return a.model.Predict(x) }

// Normalize maps a raw prediction onto [0,100].
func (a *Artifact) Normalize(raw float64) float64 {
	n := a.desc.Normalization
	var s float64
	switch n.Method {
	case NormSigmoid:
		s = 100 / (1 + math.Exp(-(raw-n.Midpoint)/n.Scale))
	default:
		s = (raw - n.Min) / (n.Max - n.Min) * 100
	}
	return math.Min(100, math.Max(0, s))
}
