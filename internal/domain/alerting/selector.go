package alerting

import (
	"fmt"
	"strings"

	"github.com/okian/sphere/internal/domain/model"
)

// Selector kinds.
const (
	SelectInfluencer = "influencer"
	SelectNiche      = "niche"
)

// Selector picks the score updates a rule watches.
type Selector struct {
	Kind  string
	Value string
}

// ParseSelector parses "influencer:<platform_id>" or "niche:<tag>".
func ParseSelector(s string) (Selector, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return Selector{}, fmt.Errorf("%w: %q", ErrMalformedSelector, s)
	}
	switch kind = strings.ToLower(strings.TrimSpace(kind)); kind {
	case SelectInfluencer, SelectNiche:
		return Selector{Kind: kind, Value: value}, nil
	default:
		return Selector{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedSelector, kind)
	}
}

func (s Selector) String() string { return s.Kind + ":" + s.Value }

// Matches reports whether u is in scope.
func (s Selector) Matches(u model.ScoreUpdate) bool {
	switch s.Kind {
	case SelectInfluencer:
		return u.PlatformID == s.Value
	case SelectNiche:
		for _, t := range u.NicheTags {
			if strings.EqualFold(strings.TrimSpace(t), s.Value) {
				return true
			}
		}
	}
	return false
}
