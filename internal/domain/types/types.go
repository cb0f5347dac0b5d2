// Package types contains result and wire shapes shared by the service and
// the HTTP layer.
package types

import (
	"time"

	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/scoring"
	"github.com/okian/sphere/internal/domain/tier"
)

// MarketValue is the full market value answer for one creator.
type MarketValue struct {
	Score       scoring.Score
	Tier        tier.Tier
	Attribution scoring.Attribution
	// EstimatedPostFeeUSD is nil when no fee schedule is configured.
	EstimatedPostFeeUSD *float64
}

// PLEP is the predicted engagement answer for one draft.
type PLEP struct {
	Score       scoring.Score
	Attribution scoring.Attribution
}

// ScoreView is the JSON shape of a score.
type ScoreView struct {
	Kind            string  `json:"kind"`
	Value           float64 `json:"value"`
	Raw             float64 `json:"raw"`
	SchemaVersion   string  `json:"schema_version"`
	ArtifactVersion string  `json:"artifact_version"`
}

// ContributionView is the JSON shape of one feature contribution.
type ContributionView struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Sign         string  `json:"sign"`
}

// AttributionView is the JSON shape of an attribution.
type AttributionView struct {
	Method   string             `json:"method"`
	Baseline float64            `json:"baseline"`
	Positive []ContributionView `json:"top_positive"`
	Negative []ContributionView `json:"top_negative"`
	Residual float64            `json:"residual"`
	Degraded bool               `json:"degraded,omitempty"`
}

// TierView is the JSON shape of a tier.
type TierView struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// MarketValueView is the response of the market value endpoint.
type MarketValueView struct {
	PlatformID          string          `json:"platform_id"`
	Score               ScoreView       `json:"score"`
	Tier                TierView        `json:"tier"`
	Attribution         AttributionView `json:"attribution"`
	EstimatedPostFeeUSD *float64        `json:"estimated_post_fee_usd,omitempty"`
}

// PLEPView is the response of the engagement prediction endpoint.
type PLEPView struct {
	PlatformID  string          `json:"platform_id"`
	Score       ScoreView       `json:"score"`
	Attribution AttributionView `json:"attribution"`
}

// View renders m for platformID.
func (m MarketValue) View(platformID string) MarketValueView {
	return MarketValueView{
		PlatformID:          platformID,
		Score:               NewScoreView(m.Score),
		Tier:                TierView{Index: m.Tier.Index, Label: m.Tier.Label},
		Attribution:         NewAttributionView(m.Attribution),
		EstimatedPostFeeUSD: m.EstimatedPostFeeUSD,
	}
}

// View renders p for platformID.
func (p PLEP) View(platformID string) PLEPView {
	return PLEPView{
		PlatformID:  platformID,
		Score:       NewScoreView(p.Score),
		Attribution: NewAttributionView(p.Attribution),
	}
}

// NewScoreView converts a score.
func NewScoreView(s scoring.Score) ScoreView {
	return ScoreView{
		Kind:            string(s.Kind),
		Value:           s.Value,
		Raw:             s.Raw,
		SchemaVersion:   s.SchemaVersion,
		ArtifactVersion: s.ArtifactVersion,
	}
}

// NewAttributionView converts an attribution. Empty sides render as [].
func NewAttributionView(a scoring.Attribution) AttributionView {
	return AttributionView{
		Method:   a.Method,
		Baseline: a.Baseline,
		Positive: contributions(a.Positive),
		Negative: contributions(a.Negative),
		Residual: a.Residual,
		Degraded: a.Degraded,
	}
}

func contributions(cs []scoring.Contribution) []ContributionView {
	out := make([]ContributionView, len(cs))
	for i, c := range cs {
		out[i] = ContributionView{Feature: c.Feature, Value: c.Value, Contribution: c.Contribution, Sign: c.Sign.String()}
	}
	return out
}

// DraftRequest is the body of the engagement prediction endpoint.
type DraftRequest struct {
	Caption      string `json:"caption"`
	ImageRef     string `json:"image_ref"`
	NicheContext string `json:"niche_context"`
	IsVideo      bool   `json:"is_video"`
}

// Draft converts the request.
func (d DraftRequest) Draft() model.ContentDraft {
	return model.ContentDraft{Caption: d.Caption, ImageRef: d.ImageRef, NicheContext: d.NicheContext, IsVideo: d.IsVideo}
}

// SnapshotView is the wire shape of a content snapshot.
type SnapshotView struct {
	PostID   string    `json:"post_id,omitempty"`
	At       time.Time `json:"at"`
	Likes    int64     `json:"likes"`
	Comments int64     `json:"comments"`
	Shares   int64     `json:"shares"`
	Views    int64     `json:"views"`
}

// ProfileView is the wire shape of an influencer profile, used by the
// ingestion endpoint and the CLI.
type ProfileView struct {
	PlatformID     string         `json:"platform_id"`
	Platform       string         `json:"platform"`
	Username       string         `json:"username"`
	NicheTags      []string       `json:"niche_tags"`
	FollowerCount  *int64         `json:"follower_count,omitempty"`
	EngagementRate *float64       `json:"engagement_rate,omitempty"`
	Snapshots      []SnapshotView `json:"snapshots"`
}

// Profile converts the view into the domain model.
func (p ProfileView) Profile() *model.InfluencerProfile {
	out := &model.InfluencerProfile{
		PlatformID:     p.PlatformID,
		Platform:       model.Platform(p.Platform),
		Username:       p.Username,
		NicheTags:      p.NicheTags,
		FollowerCount:  p.FollowerCount,
		EngagementRate: p.EngagementRate,
	}
	for _, s := range p.Snapshots {
		out.Snapshots = append(out.Snapshots, model.ContentSnapshot{
			PostID: s.PostID, At: s.At, Likes: s.Likes, Comments: s.Comments, Shares: s.Shares, Views: s.Views,
		})
	}
	return out.Clone()
}

// RuleView is the wire shape of an alert rule.
type RuleView struct {
	ID            string             `json:"id"`
	OwnerID       string             `json:"owner_id"`
	Target        string             `json:"target"`
	Metric        string             `json:"metric"`
	Operator      string             `json:"operator"`
	Threshold     float64            `json:"threshold"`
	CooldownSec   int64              `json:"cooldown_seconds"`
	State         string             `json:"state"`
	CooldownUntil *time.Time         `json:"cooldown_until,omitempty"`
	LastValues    map[string]float64 `json:"last_values,omitempty"`
	Invalid       bool               `json:"invalid,omitempty"`
	InvalidReason string             `json:"invalid_reason,omitempty"`
	Version       int64              `json:"version"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewRuleView converts a rule.
func NewRuleView(r model.AlertRule) RuleView {
	v := RuleView{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Target:        r.Target,
		Metric:        string(r.Metric),
		Operator:      string(r.Operator),
		Threshold:     r.Threshold,
		CooldownSec:   int64(r.Cooldown / time.Second),
		State:         string(r.State),
		LastValues:    r.LastValues,
		Invalid:       r.Invalid,
		InvalidReason: r.InvalidReason,
		Version:       r.Version,
		UpdatedAt:     r.UpdatedAt,
	}
	if !r.CooldownUntil.IsZero() {
		t := r.CooldownUntil
		v.CooldownUntil = &t
	}
	return v
}

// RuleRequest creates a rule.
type RuleRequest struct {
	OwnerID     string  `json:"owner_id"`
	Target      string  `json:"target"`
	Metric      string  `json:"metric"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
	CooldownSec int64   `json:"cooldown_seconds"`
}

// Rule converts the request. Validation happens in the store.
func (r RuleRequest) Rule() model.AlertRule {
	return model.AlertRule{
		OwnerID:   r.OwnerID,
		Target:    r.Target,
		Metric:    model.Metric(r.Metric),
		Operator:  model.Operator(r.Operator),
		Threshold: r.Threshold,
		Cooldown:  time.Duration(r.CooldownSec) * time.Second,
	}
}

// RuleEditRequest edits a rule. Absent fields are left untouched.
type RuleEditRequest struct {
	Target      *string  `json:"target,omitempty"`
	Metric      *string  `json:"metric,omitempty"`
	Operator    *string  `json:"operator,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	CooldownSec *int64   `json:"cooldown_seconds,omitempty"`
}

// Edit converts the request.
func (r RuleEditRequest) Edit() model.RuleEdit {
	var e model.RuleEdit
	e.Target = r.Target
	e.Threshold = r.Threshold
	if r.Metric != nil {
		m := model.Metric(*r.Metric)
		e.Metric = &m
	}
	if r.Operator != nil {
		op := model.Operator(*r.Operator)
		e.Operator = &op
	}
	if r.CooldownSec != nil {
		d := time.Duration(*r.CooldownSec) * time.Second
		e.Cooldown = &d
	}
	return e
}

// CycleRequest triggers an alert cycle. An empty snapshot evaluates the
// pending score stream.
type CycleRequest struct {
	Snapshot []model.ScoreUpdate `json:"snapshot"`
}

// CycleView is the response of an alert cycle.
type CycleView struct {
	ID              string             `json:"id"`
	Rules           int                `json:"rules"`
	Evaluated       int                `json:"evaluated"`
	Skipped         int                `json:"skipped"`
	Invalid         int                `json:"invalid"`
	Fired           int                `json:"fired"`
	Conflicts       int                `json:"conflicts"`
	SaveFailures    int                `json:"save_failures"`
	PublishFailures int                `json:"publish_failures"`
	Events          []model.AlertEvent `json:"events"`
	DurationMS      float64            `json:"duration_ms"`
}

// NewCycleView converts a cycle report.
func NewCycleView(r alerting.Report) CycleView {
	events := r.Events
	if events == nil {
		events = []model.AlertEvent{}
	}
	return CycleView{
		ID:              r.ID,
		Rules:           r.Rules,
		Evaluated:       r.Evaluated,
		Skipped:         r.Skipped,
		Invalid:         r.Invalid,
		Fired:           r.Fired,
		Conflicts:       r.Conflicts,
		SaveFailures:    r.SaveFailures,
		PublishFailures: r.PublishFailures,
		Events:          events,
		DurationMS:      float64(r.Duration.Microseconds()) / 1000,
	}
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started      bool     `json:"started"`
	Artifacts    []string `json:"artifacts"`
	ScoreQueue   int      `json:"score_queue"`
	RescoreQueue int      `json:"rescore_queue"`
	Workers      int      `json:"workers"`
	Processed    int64    `json:"rescores_processed"`
	Failed       int64    `json:"rescores_failed"`
}
