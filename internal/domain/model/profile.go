// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Platform identifies the social network a profile lives on.
type Platform string

// Known platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// InfluencerProfile is the read-only view of a creator owned by ingestion.
// Optional raw fields are pointers; nil means the field was never observed.
type InfluencerProfile struct {
	PlatformID     string
	Platform       Platform
	Username       string
	NicheTags      []string
	FollowerCount  *int64
	EngagementRate *float64
	Snapshots      []ContentSnapshot // time-ordered, append-only
}

// ContentSnapshot records raw engagement for one published piece of content.
// Views == 0 means the platform did not report views. A snapshot is
// identified by PostID and At together; an empty PostID leaves At as the
// only key, so two unnamed posts published at the same instant collapse.
type ContentSnapshot struct {
	PostID   string
	At       time.Time
	Likes    int64
	Comments int64
	Shares   int64
	Views    int64
}

// Interactions returns likes + comments + shares.
func (s ContentSnapshot) Interactions() int64 {
	return s.Likes + s.Comments + s.Shares
}

// ContentDraft is a prospective post supplied per PLEP request.
type ContentDraft struct {
	Caption      string
	ImageRef     string
	NicheContext string
	IsVideo      bool
}

// Clone returns a deep copy so callers can hand the pipeline an immutable snapshot.
func (p *InfluencerProfile) Clone() *InfluencerProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.NicheTags = append([]string(nil), p.NicheTags...)
	c.Snapshots = append([]ContentSnapshot(nil), p.Snapshots...)
	if p.FollowerCount != nil {
		v := *p.FollowerCount
		c.FollowerCount = &v
	}
	if p.EngagementRate != nil {
		v := *p.EngagementRate
		c.EngagementRate = &v
	}
	return &c
}

// HasNiche reports whether tag is one of the profile's niche tags, ignoring
// case and surrounding space.
func (p *InfluencerProfile) HasNiche(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, t := range p.NicheTags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
