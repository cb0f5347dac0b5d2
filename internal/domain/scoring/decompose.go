package scoring

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/okian/sphere/internal/domain/artifact"
)

// Decomposer splits f(x) - f(reference) into per-slot contributions.
type Decomposer interface {
	Name() string
	Decompose(a *artifact.Artifact, x []float64) ([]float64, error)
}

// Linear is the exact decomposition w_i * (x_i - ref_i) of additive models.
type Linear struct{}

// Name implements Decomposer.
func (Linear) Name() string { return "linear" }

// Decompose implements Decomposer.
func (Linear) Decompose(a *artifact.Artifact, x []float64) ([]float64, error) {
	w, ok := a.Model().Weights()
	if !ok {
		return nil, ErrNotAdditive
	}
	ref := a.Reference()
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i] * (x[i] - ref[i])
	}
	return out, nil
}

// Sampling estimates Shapley values by averaging marginal contributions over
// random slot orderings. Each ordering telescopes from f(reference) to f(x),
// so the estimates always sum to f(x) - f(reference). The seed depends only on
// the artifact version and x, which keeps results reproducible.
type Sampling struct {
	Permutations int
}

// Name implements Decomposer.
func (Sampling) Name() string { return "sampling" }

// Decompose implements Decomposer.
func (s Sampling) Decompose(a *artifact.Artifact, x []float64) ([]float64, error) {
	n := len(x)
	m := s.Permutations
	if m <= 0 {
		m = DefaultSamples
	}
	ref := a.Reference()
	rng := rand.New(rand.NewPCG(seed(a.Version(), x)))

	phi := make([]float64, n)
	z := make([]float64, n)
	for range m {
		copy(z, ref)
		prev := a.Predict(z)
		for _, j := range rng.Perm(n) {
			z[j] = x[j]
			cur := a.Predict(z)
			phi[j] += cur - prev
			prev = cur
		}
	}
	for j := range phi {
		phi[j] /= float64(m)
	}
	return phi, nil
}

func seed(version string, x []float64) (uint64, uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(version))
	var buf [8]byte
	for _, v := range x {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	s := h.Sum64()
	return s, s ^ 0x9e3779b97f4a7c15
}
