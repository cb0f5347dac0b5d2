package loadgen

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sphere/internal/domain/types"
)

// archetype is a band of creators with similar reach.
type archetype struct {
	minFollowers, maxFollowers float64
	minRate, maxRate           float64
	weight                     int
}

// Bands loosely follow the usual nano to mega split. Smaller creators are
// more common and engage better.
var archetypes = []archetype{
	{minFollowers: 1e3, maxFollowers: 1e4, minRate: 0.04, maxRate: 0.12, weight: 40},
	{minFollowers: 1e4, maxFollowers: 1e5, minRate: 0.02, maxRate: 0.08, weight: 30},
	{minFollowers: 1e5, maxFollowers: 5e5, minRate: 0.015, maxRate: 0.05, weight: 15},
	{minFollowers: 5e5, maxFollowers: 1e6, minRate: 0.01, maxRate: 0.04, weight: 10},
	{minFollowers: 1e6, maxFollowers: 5e7, minRate: 0.005, maxRate: 0.03, weight: 5},
}

var niches = []string{"fitness", "beauty", "gaming", "food", "travel", "tech", "fashion", "parenting"}

const (
	snapshotsPerProfile = 6
	snapshotSpacing     = 24 * time.Hour
	// missingRatio is the share of creators generated without an
	// engagement rate, which the service imputes from snapshots.
	missingRatio = 0.1
)

// Generator produces synthetic creator profiles.
type Generator struct {
	rng      *rand.Rand
	platform string
	now      func() time.Time
}

// NewGenerator creates a generator. The same seed yields the same metrics;
// ids are always fresh.
func NewGenerator(platform string, seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		platform: platform,
		now:      time.Now,
	}
}

// Profiles returns n generated profiles.
func (g *Generator) Profiles(n int) []types.ProfileView {
	out := make([]types.ProfileView, n)
	for i := range out {
		out[i] = g.profile()
	}
	return out
}

func (g *Generator) profile() types.ProfileView {
	a := g.pick()
	// Log-uniform so bands are not dominated by their upper end.
	followers := int64(math.Exp(g.between(math.Log(a.minFollowers), math.Log(a.maxFollowers))))
	rate := g.between(a.minRate, a.maxRate)

	p := types.ProfileView{
		PlatformID:    g.platform + ":" + uuid.NewString(),
		Platform:      g.platform,
		Username:      "creator_" + uuid.NewString()[:8],
		NicheTags:     g.tags(),
		FollowerCount: &followers,
	}
	if g.rng.Float64() >= missingRatio {
		p.EngagementRate = &rate
	}

	now := g.now().UTC().Truncate(time.Hour)
	reach := float64(followers) * rate
	for i := snapshotsPerProfile; i > 0; i-- {
		likes := int64(reach * g.between(0.7, 1.3))
		p.Snapshots = append(p.Snapshots, types.SnapshotView{
			PostID:   uuid.NewString(),
			At:       now.Add(-time.Duration(i) * snapshotSpacing),
			Likes:    likes,
			Comments: likes / 20,
			Shares:   likes / 50,
			Views:    int64(float64(followers) * g.between(0.1, 0.6)),
		})
	}
	return p
}

func (g *Generator) pick() archetype {
	total := 0
	for _, a := range archetypes {
		total += a.weight
	}
	n := g.rng.IntN(total)
	for _, a := range archetypes {
		if n < a.weight {
			return a
		}
		n -= a.weight
	}
	return archetypes[0]
}

func (g *Generator) tags() []string {
	k := 1 + g.rng.IntN(3)
	perm := g.rng.Perm(len(niches))
	out := make([]string, k)
	for i := range out {
		out[i] = niches[perm[i]]
	}
	return out
}

func (g *Generator) between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
