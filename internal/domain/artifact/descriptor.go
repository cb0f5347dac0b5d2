package artifact

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/sphere/internal/domain/model"
)

// Kind is the model kind an artifact serves. It shares its values with the
// metric the model produces.
type Kind = model.Metric

// Model kinds.
const (
	KindMarketValue = model.MetricMarketValue
	KindPLEP        = model.MetricPLEP
)

// Normalization methods.
const (
	NormMinMax  = "minmax"
	NormSigmoid = "sigmoid"
)

// DefaultTolerance is the relative attribution tolerance when the descriptor
// declares none.
const DefaultTolerance = 1e-3

// Descriptor is the sidecar written by the training job next to the model file.
type Descriptor struct {
	ModelKind            Kind             `yaml:"model_kind"`
	SchemaVersion        string           `yaml:"schema_version"`
	ArtifactVersion      string           `yaml:"artifact_version"`
	ModelFile            string           `yaml:"model_file"`
	Baseline             Baseline         `yaml:"baseline_reference"`
	Normalization        Normalization    `yaml:"normalization_params"`
	TrainedAt            time.Time        `yaml:"trained_at"`
	ValidationMetric     ValidationMetric `yaml:"validation_metric"`
	AttributionTolerance float64          `yaml:"attribution_tolerance,omitempty"`
	// Decomposer overrides the attribution strategy ("linear" or "sampling").
	Decomposer string `yaml:"decomposer,omitempty"`
}

// Baseline is the expected-value reference point attribution is relative to.
type Baseline struct {
	Value    float64            `yaml:"value"`
	Features map[string]float64 `yaml:"features"`
}

// Normalization maps raw model output onto [0,100].
type Normalization struct {
	Method   string  `yaml:"method"`
	Min      float64 `yaml:"min,omitempty"`
	Max      float64 `yaml:"max,omitempty"`
	Midpoint float64 `yaml:"midpoint,omitempty"`
	Scale    float64 `yaml:"scale,omitempty"`
}

// ValidationMetric is the holdout metric reported by training.
type ValidationMetric struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

// ParseDescriptor decodes a descriptor.yaml document. Unknown fields fail.
func ParseDescriptor(data []byte) (Descriptor, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Descriptor{}, ErrMissingDescriptor
	}
	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: descriptor: %v", ErrInvalidArtifact, err)
	}
	return d, nil
}

// Marshal renders d as YAML.
func (d Descriptor) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
