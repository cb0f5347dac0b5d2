package features

import (
	"fmt"
	"sort"

	"github.com/okian/sphere/internal/domain/model"
)

// Built-in schema versions. Versions are globally unique across kinds.
const (
	MarketValueV1 = "market_value.v1"
	PLEPV1        = "plep.v1"
)

// Catalog is a static set of schemas keyed by version.
type Catalog struct {
	schemas map[string]Schema
}

// NewCatalog validates schemas and indexes them by version.
func NewCatalog(schemas ...Schema) (*Catalog, error) {
	c := &Catalog{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.schemas[s.Version]; dup {
			return nil, fmt.Errorf("%w: version %s registered twice", ErrInvalidSchema, s.Version)
		}
		c.schemas[s.Version] = s
	}
	return c, nil
}

// Lookup returns the schema registered under version.
func (c *Catalog) Lookup(version string) (Schema, error) {
	s, ok := c.schemas[version]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownSchema, version)
	}
	return s, nil
}

// Versions lists registered versions in sorted order.
func (c *Catalog) Versions() []string {
	out := make([]string, 0, len(c.schemas))
	for v := range c.schemas {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func constant(v float64) Imputation { return Imputation{Rule: ImputeConstant, Value: v} }

var (
	fail = Imputation{Rule: ImputeFail}
	mean = Imputation{Rule: ImputeMean}
)

func marketValueV1() Schema {
	return Schema{
		Version: MarketValueV1,
		Kind:    model.MetricMarketValue,
		Slots: []Slot{
			{Name: "log_followers", Type: TypeFloat, Imputation: fail, derive: logFollowers},
			{Name: "engagement_rate", Type: TypeFloat, Imputation: mean, derive: engagementRate, samples: engagementRateSamples},
			{Name: "avg_views_log", Type: TypeFloat, Imputation: constant(0), derive: avgViewsLog},
			{Name: "posting_frequency", Type: TypeFloat, Imputation: constant(0), derive: postingFrequency},
			{Name: "conversation_rate", Type: TypeFloat, Imputation: constant(0), derive: conversationRate},
			{Name: "engagement_trend", Type: TypeFloat, Imputation: constant(0), derive: engagementTrend},
			{Name: "niche_breadth", Type: TypeInt, Imputation: constant(0), derive: nicheBreadth},
		},
	}
}

func plepV1() Schema {
	return Schema{
		Version: PLEPV1,
		Kind:    model.MetricPLEP,
		Slots: []Slot{
			{Name: "log_followers", Type: TypeFloat, Imputation: fail, derive: logFollowers},
			{Name: "engagement_rate", Type: TypeFloat, Imputation: mean, derive: engagementRate, samples: engagementRateSamples},
			{Name: "caption_length", Type: TypeInt, Imputation: fail, derive: captionLength},
			{Name: "hashtag_count", Type: TypeInt, Imputation: constant(0), derive: hashtagCount},
			{Name: "mention_count", Type: TypeInt, Imputation: constant(0), derive: mentionCount},
			{Name: "has_image", Type: TypeBool, Imputation: constant(0), derive: hasImage},
			{Name: "is_video", Type: TypeBool, Imputation: constant(0), derive: isVideo},
			{Name: "niche_match", Type: TypeBool, Imputation: constant(0), derive: nicheMatch},
		},
	}
}

var defaultCatalog = func() *Catalog {
	c, err := NewCatalog(marketValueV1(), plepV1())
	if err != nil {
		panic(err)
	}
	return c
}()

// Default returns the catalog of built-in schemas.
func Default() *Catalog { return defaultCatalog }
