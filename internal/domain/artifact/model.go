package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/okian/sphere/internal/domain/features"
)

// Model types understood in model.json.
const (
	TypeLinear      = "linear"
	TypeInteraction = "interaction"
)

// Model is a compiled scoring function over vectors in schema slot order.
type Model interface {
	Type() string
	// Predict returns the raw prediction for x.
	Predict(x []float64) float64
	// Weights returns per-slot weights when the model is exactly additive.
	Weights() ([]float64, bool)
}

// Params is the on-disk form of model.json.
type Params struct {
	Type         string             `json:"type"`
	Intercept    float64            `json:"intercept"`
	Weights      map[string]float64 `json:"weights"`
	Interactions []InteractionTerm  `json:"interactions,omitempty"`
}

// InteractionTerm adds Weight * x[A] * x[B] to the prediction.
type InteractionTerm struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}

// ParseParams decodes model.json. Unknown fields fail.
func ParseParams(data []byte) (Params, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Params{}, ErrMissingModel
	}
	var p Params
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Params{}, fmt.Errorf("%w: model: %v", ErrInvalidArtifact, err)
	}
	return p, nil
}

type linear struct {
	intercept float64
	weights   []float64
}

func (m *linear) Type() string { return TypeLinear }

func (m *linear) Predict(x []float64) float64 {
	y := m.intercept
	for i, w := range m.weights {
		y += w * x[i]
	}
	return y
}

func (m *linear) Weights() ([]float64, bool) {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out, true
}

type pair struct {
	a, b int
	w    float64
}

type interaction struct {
	linear
	pairs []pair
}

func (m *interaction) Type() string { return TypeInteraction }

func (m *interaction) Predict(x []float64) float64 {
	y := m.linear.Predict(x)
	for _, p := range m.pairs {
		y += p.w * x[p.a] * x[p.b]
	}
	return y
}

func (m *interaction) Weights() ([]float64, bool) {
	if len(m.pairs) == 0 {
		return m.linear.Weights()
	}
	return nil, false
}

// compile binds params to the slot layout of s.
func compile(p Params, s features.Schema) (Model, error) {
	if !isFinite(p.Intercept) {
		return nil, fmt.Errorf("%w: non-finite intercept", ErrInvalidArtifact)
	}
	if err := coversExactly(p.Weights, s, "weights"); err != nil {
		return nil, err
	}
	lin := linear{intercept: p.Intercept, weights: make([]float64, len(s.Slots))}
	for i, sl := range s.Slots {
		lin.weights[i] = p.Weights[sl.Name]
	}

	switch p.Type {
	case TypeLinear:
		if len(p.Interactions) > 0 {
			return nil, fmt.Errorf("%w: linear model declares interactions", ErrInvalidArtifact)
		}
		return &lin, nil
	case TypeInteraction:
		m := &interaction{linear: lin, pairs: make([]pair, 0, len(p.Interactions))}
		for _, t := range p.Interactions {
			a, b := s.Index(t.A), s.Index(t.B)
			if a < 0 || b < 0 {
				return nil, fmt.Errorf("%w: interaction %s*%s references unknown slot", ErrInvalidArtifact, t.A, t.B)
			}
			if !isFinite(t.Weight) {
				return nil, fmt.Errorf("%w: non-finite interaction weight %s*%s", ErrInvalidArtifact, t.A, t.B)
			}
			m.pairs = append(m.pairs, pair{a: a, b: b, w: t.Weight})
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: model type %q", ErrInvalidArtifact, p.Type)
	}
}

// coversExactly checks that m has one finite entry per slot and nothing else.
func coversExactly(m map[string]float64, s features.Schema, what string) error {
	for _, sl := range s.Slots {
		v, ok := m[sl.Name]
		if !ok {
			return fmt.Errorf("%w: %s missing slot %q", ErrInvalidArtifact, what, sl.Name)
		}
		if !isFinite(v) {
			return fmt.Errorf("%w: %s has non-finite %q", ErrInvalidArtifact, what, sl.Name)
		}
	}
	if len(m) != len(s.Slots) {
		var extra []string
		for k := range m {
			if s.Index(k) < 0 {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: %s has slots outside %s: %v", ErrInvalidArtifact, what, s.Version, extra)
	}
	return nil
}

func isFinite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
