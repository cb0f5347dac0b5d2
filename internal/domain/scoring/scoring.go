// Package scoring runs inference against registry artifacts and explains each
// score as additive per-feature contributions relative to the artifact baseline.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// Resolver returns the active artifact handle for a kind.
type Resolver interface {
	Resolve(kind artifact.Kind) (*registry.Handle, error)
}

// Score is a bounded score plus the versions it was computed against.
type Score struct {
	Kind            artifact.Kind
	Value           float64 // normalized to [0,100]
	Raw             float64
	SchemaVersion   string
	ArtifactVersion string
}

// Sign of a contribution.
type Sign int

// Contribution signs.
const (
	Negative Sign = -1
	Zero     Sign = 0
	Positive Sign = 1
)

func (s Sign) String() string {
	switch s {
	case Positive:
		return "+"
	case Negative:
		return "-"
	default:
		return "0"
	}
}

// Contribution is one feature's share of raw - baseline.
type Contribution struct {
	Feature      string
	Value        float64
	Contribution float64
	Sign         Sign
}

// Attribution explains a Score.
type Attribution struct {
	Method   string
	Baseline float64
	// All holds every contribution in ranking order.
	All      []Contribution
	Positive []Contribution
	Negative []Contribution
	// Residual is sum(contributions) - (raw - baseline).
	Residual float64
	Degraded bool
}

// Sum returns the total of all contributions.
func (a Attribution) Sum() float64 {
	var s float64
	for _, c := range a.All {
		s += c.Contribution
	}
	return s
}

// Result is the output of one inference.
type Result struct {
	Score       Score
	Attribution Attribution
}

// Engine is stateless apart from reading the resolver.
type Engine struct {
	resolver Resolver
	topK     int
	linear   Decomposer
	sampling Decomposer
	forced   Decomposer
	logger   logger.Logger
}

// NewEngine creates an engine over r.
func NewEngine(r Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: r,
		topK:     DefaultTopK,
		linear:   Linear{},
		sampling: Sampling{Permutations: DefaultSamples},
		logger:   logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score resolves the active artifact for kind and scores v against it.
func (e *Engine) Score(ctx context.Context, kind artifact.Kind, v features.Vector) (Result, error) {
	start := time.Now()
	h, err := e.resolver.Resolve(kind)
	if err != nil {
		metrics.RecordInference(string(kind), "not_loaded", msSince(start))
		return Result{}, err
	}
	res, err := e.ScoreWith(ctx, h.Artifact(), v)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Attribution.Degraded:
		outcome = "degraded"
	}
	metrics.RecordInference(string(kind), outcome, msSince(start))
	return res, err
}

// ScoreWith scores v against a specific artifact.
func (e *Engine) ScoreWith(ctx context.Context, a *artifact.Artifact, v features.Vector) (Result, error) {
	if err := checkSchema(a, v); err != nil {
		metrics.RecordSchemaMismatch(string(a.Kind()))
		return Result{}, err
	}

	raw := a.Predict(v.Values)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Result{}, fmt.Errorf("%w: %s %s", ErrNonFinitePrediction, a.Kind(), a.Version())
	}
	score := Score{
		Kind:            a.Kind(),
		Value:           a.Normalize(raw),
		Raw:             raw,
		SchemaVersion:   a.SchemaVersion(),
		ArtifactVersion: a.Version(),
	}
	metrics.ObserveScore(string(a.Kind()), score.Value)

	d := e.decomposerFor(a)
	contribs, err := d.Decompose(a, v.Values)
	if err != nil {
		return Result{}, fmt.Errorf("decompose %s %s with %s: %w", a.Kind(), a.Version(), d.Name(), err)
	}

	attr := e.rank(v, contribs)
	attr.Method = d.Name()
	attr.Baseline = a.Baseline()

	delta := raw - a.Baseline()
	attr.Residual = attr.Sum() - delta
	if math.Abs(attr.Residual) > a.Tolerance()*math.Max(1, math.Abs(delta)) {
		attr.Degraded = true
		metrics.RecordAttributionDegraded(string(a.Kind()))
		e.logger.Warn(ctx, "attribution does not reconcile",
			logger.Error(ErrAttributionTolerance),
			logger.String("kind", string(a.Kind())),
			logger.String("schema", a.SchemaVersion()),
			logger.String("artifact", a.Version()),
			logger.String("method", d.Name()),
			logger.Float64("residual", attr.Residual),
			logger.Float64("delta", delta))
	}
	return Result{Score: score, Attribution: attr}, nil
}

func (e *Engine) decomposerFor(a *artifact.Artifact) Decomposer {
	if e.forced != nil {
		return e.forced
	}
	switch a.Decomposer() {
	case "linear":
		return e.linear
	case "sampling":
		return e.sampling
	}
	if _, ok := a.Model().Weights(); ok {
		return e.linear
	}
	return e.sampling
}

// checkSchema rejects vectors built for another schema. Nothing is coerced.
func checkSchema(a *artifact.Artifact, v features.Vector) error {
	mismatch := func(detail string) error {
		return &SchemaMismatchError{
			Kind:     string(a.Kind()),
			Vector:   v.SchemaVersion,
			Artifact: a.SchemaVersion(),
			Detail:   detail,
		}
	}
	if v.SchemaVersion != a.SchemaVersion() {
		return mismatch("")
	}
	names := a.Schema().Names()
	if len(v.Names) != len(names) || len(v.Values) != len(names) {
		return mismatch(fmt.Sprintf("vector has %d slots, schema has %d", len(v.Values), len(names)))
	}
	for i, n := range names {
		if v.Names[i] != n {
			return mismatch(fmt.Sprintf("slot %d is %q, want %q", i, v.Names[i], n))
		}
	}
	return nil
}

// rank orders contributions by magnitude, then by name, and keeps the top K
// of each sign. Exact zeros land in neither list.
func (e *Engine) rank(v features.Vector, contribs []float64) Attribution {
	all := make([]Contribution, len(contribs))
	for i, c := range contribs {
		s := Zero
		switch {
		case c > 0:
			s = Positive
		case c < 0:
			s = Negative
		}
		all[i] = Contribution{Feature: v.Names[i], Value: v.Values[i], Contribution: c, Sign: s}
	}
	sort.SliceStable(all, func(i, j int) bool {
		ai, aj := math.Abs(all[i].Contribution), math.Abs(all[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return all[i].Feature < all[j].Feature
	})

	attr := Attribution{All: all}
	for _, c := range all {
		switch {
		case c.Sign == Positive && len(attr.Positive) < e.topK:
			attr.Positive = append(attr.Positive, c)
		case c.Sign == Negative && len(attr.Negative) < e.topK:
			attr.Negative = append(attr.Negative, c)
		}
	}
	return attr
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
