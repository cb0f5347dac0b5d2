package loadgen

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInconsistent is returned when valuations contradict each other.
var ErrInconsistent = errors.New("inconsistent valuations")

// Verify checks that every score lies in [0,100], that tiers never go down
// as scores go up, that one tier index always carries one label and that
// fees never go down within a tier.
func Verify(vals []Valuation) error {
	if len(vals) == 0 {
		return fmt.Errorf("%w: nothing to verify", ErrInconsistent)
	}

	sorted := slices.Clone(vals)
	slices.SortFunc(sorted, func(a, b Valuation) int {
		switch {
		case a.Score.Value < b.Score.Value:
			return -1
		case a.Score.Value > b.Score.Value:
			return 1
		}
		return 0
	})

	var problems []error
	labels := make(map[int]string)
	for i, v := range sorted {
		if v.Score.Value < 0 || v.Score.Value > 100 {
			problems = append(problems, fmt.Errorf("%s: score %.3f outside [0,100]", v.PlatformID, v.Score.Value))
		}
		if l, ok := labels[v.Tier.Index]; ok && l != v.Tier.Label {
			problems = append(problems, fmt.Errorf("%s: tier %d labelled %q and %q", v.PlatformID, v.Tier.Index, l, v.Tier.Label))
		}
		labels[v.Tier.Index] = v.Tier.Label
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if v.Tier.Index < prev.Tier.Index && v.Score.Value > prev.Score.Value {
			problems = append(problems, fmt.Errorf("%s: tier %d below %s tier %d at a higher score",
				v.PlatformID, v.Tier.Index, prev.PlatformID, prev.Tier.Index))
		}
		if v.Tier.Index == prev.Tier.Index && v.EstimatedPostFeeUSD != nil && prev.EstimatedPostFeeUSD != nil &&
			*v.EstimatedPostFeeUSD < *prev.EstimatedPostFeeUSD {
			problems = append(problems, fmt.Errorf("%s: fee %.0f below %s fee %.0f in the same tier",
				v.PlatformID, *v.EstimatedPostFeeUSD, prev.PlatformID, *prev.EstimatedPostFeeUSD))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInconsistent, errors.Join(problems...))
	}
	return nil
}
