package model

import "time"

// Metric names a scored quantity an alert rule can watch.
type Metric string

// Watched metrics.
const (
	MetricMarketValue Metric = "market_value"
	MetricPLEP        Metric = "plep"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricMarketValue || m == MetricPLEP
}

// ScoreUpdate is one element of the score stream consumed by alert evaluation.
type ScoreUpdate struct {
	PlatformID      string    `json:"platform_id"`
	Metric          Metric    `json:"metric"`
	Value           float64   `json:"value"`
	At              time.Time `json:"at"`
	NicheTags       []string  `json:"niche_tags,omitempty"`
	SchemaVersion   string    `json:"schema_version"`
	ArtifactVersion string    `json:"artifact_version"`
}

// ProfileChange is the ingestion collaborator's signal that a profile's raw
// data changed and its market value should be recomputed.
type ProfileChange struct {
	PlatformID string    `json:"platform_id"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}
