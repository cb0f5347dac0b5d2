// Package tier maps scores onto ordered market tiers.
package tier

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBoundaries is returned for boundaries that are not strictly
	// increasing or do not match the label count.
	ErrInvalidBoundaries = errors.New("invalid tier boundaries")
	// ErrInvalidFees is returned for a fee schedule that could price a
	// higher score below a lower one.
	ErrInvalidFees = errors.New("invalid tier fees")
)

// Default tiers.
var (
	DefaultBoundaries = []float64{70, 90}
	DefaultLabels     = []string{"Emerging", "Established", "Elite"}
	DefaultFees       = []Fee{{Base: 500, PerPoint: 30}, {Base: 2000, PerPoint: 75}, {Base: 5000, PerPoint: 150}}
)

// Tier is an ordinal bucket. Higher Index means a higher tier.
type Tier struct {
	Index int
	Label string
}

// Fee is a per-tier post price: Base plus PerPoint for every point of the
// full score.
type Fee struct {
	Base     float64
	PerPoint float64
}

// Classifier holds validated boundaries.
type Classifier struct {
	boundaries []float64
	labels     []string
	fees       []Fee
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFees sets one fee schedule per tier.
func WithFees(fees ...Fee) Option {
	return func(c *Classifier) {
		c.fees = append([]Fee(nil), fees...)
	}
}

// New validates boundaries and labels. It fails fast on anything but strictly
// increasing, finite boundaries with exactly one more label than boundaries.
func New(boundaries []float64, labels []string, opts ...Option) (*Classifier, error) {
	if len(labels) != len(boundaries)+1 {
		return nil, fmt.Errorf("%w: %d boundaries need %d labels, got %d",
			ErrInvalidBoundaries, len(boundaries), len(boundaries)+1, len(labels))
	}
	for i, b := range boundaries {
		if !finite(b) {
			return nil, fmt.Errorf("%w: boundary %d is not finite", ErrInvalidBoundaries, i)
		}
		if i > 0 && b <= boundaries[i-1] {
			return nil, fmt.Errorf("%w: %v is not greater than %v", ErrInvalidBoundaries, b, boundaries[i-1])
		}
	}
	c := &Classifier{
		boundaries: append([]float64(nil), boundaries...),
		labels:     append([]string(nil), labels...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fees != nil && len(c.fees) != len(c.labels) {
		return nil, fmt.Errorf("%w: %d fee schedules for %d tiers", ErrInvalidBoundaries, len(c.fees), len(c.labels))
	}
	if err := c.checkFees(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkFees requires the estimate to be non-decreasing in score: every
// schedule has a finite, non-negative rate and a tier never starts below
// the price its lower neighbour reaches at the shared boundary.
func (c *Classifier) checkFees() error {
	for i, f := range c.fees {
		if !finite(f.Base) || !finite(f.PerPoint) || f.PerPoint < 0 {
			return fmt.Errorf("%w: tier %q has base %v per_point %v", ErrInvalidFees, c.labels[i], f.Base, f.PerPoint)
		}
		if i == 0 {
			continue
		}
		b := c.boundaries[i-1]
		if below, at := c.fees[i-1].at(b), f.at(b); at < below {
			return fmt.Errorf("%w: %q starts at %v, below %q at %v (score %v)",
				ErrInvalidFees, c.labels[i], at, c.labels[i-1], below, b)
		}
	}
	return nil
}

func (f Fee) at(score float64) float64 { return f.Base + f.PerPoint*score }

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Default returns the Emerging/Established/Elite classifier.
func Default() *Classifier {
	c, err := New(DefaultBoundaries, DefaultLabels, WithFees(DefaultFees...))
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the tier containing score. A boundary belongs to the tier
// above it and the top tier is unbounded.
func (c *Classifier) Classify(score float64) Tier {
	i := 0
	for i < len(c.boundaries) && score >= c.boundaries[i] {
		i++
	}
	return Tier{Index: i, Label: c.labels[i]}
}

// Labels returns the tier labels in ascending order.
func (c *Classifier) Labels() []string { return append([]string(nil), c.labels...) }

// EstimatePostFee prices one sponsored post for a creator with score, rounded
// to whole dollars. It returns false when no fee schedule is configured.
func (c *Classifier) EstimatePostFee(score float64) (float64, bool) {
	if len(c.fees) == 0 {
		return 0, false
	}
	return math.Round(c.fees[c.Classify(score).Index].at(math.Max(0, score))), true
}
