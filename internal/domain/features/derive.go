package features

import (
	"math"
	"time"

	"github.com/okian/sphere/internal/domain/model"
)

const (
	// WindowSpan bounds the trailing window relative to the latest snapshot.
	WindowSpan = 30 * 24 * time.Hour
	// WindowCap is the most snapshots the trailing window keeps.
	WindowCap = 30
)

// trailingWindow returns the snapshots no older than WindowSpan before the
// latest one, capped to the WindowCap most recent. Input order is preserved.
func trailingWindow(snaps []model.ContentSnapshot) []model.ContentSnapshot {
	if len(snaps) == 0 {
		return nil
	}
	latest := snaps[0].At
	for _, s := range snaps[1:] {
		if s.At.After(latest) {
			latest = s.At
		}
	}
	cutoff := latest.Add(-WindowSpan)
	out := make([]model.ContentSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.At.Before(cutoff) {
			out = append(out, s)
		}
	}
	if len(out) > WindowCap {
		out = out[len(out)-WindowCap:]
	}
	return out
}

func profileOf(e Entity) *model.InfluencerProfile { return e.Profile }

func logFollowers(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil || p.FollowerCount == nil || *p.FollowerCount < 0 {
		return 0, false
	}
	return math.Log10(1 + float64(*p.FollowerCount)), true
}

// engagementRate is Σ(likes+comments+shares)/Σ(views) over the trailing
// window, falling back to the rate the platform reported.
func engagementRate(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	var inter, views int64
	for _, s := range trailingWindow(p.Snapshots) {
		if s.Views <= 0 {
			continue
		}
		inter += s.Interactions()
		views += s.Views
	}
	if views > 0 {
		return float64(inter) / float64(views), true
	}
	if p.EngagementRate != nil {
		return *p.EngagementRate, true
	}
	return 0, false
}

func engagementRateSamples(e Entity) []float64 {
	p := profileOf(e)
	if p == nil {
		return nil
	}
	var out []float64
	for _, s := range p.Snapshots {
		if s.Views > 0 {
			out = append(out, float64(s.Interactions())/float64(s.Views))
		}
	}
	return out
}

func avgViewsLog(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	var sum, n int64
	for _, s := range trailingWindow(p.Snapshots) {
		if s.Views > 0 {
			sum += s.Views
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Log10(1 + float64(sum)/float64(n)), true
}

// postingFrequency is posts per week across the trailing window.
func postingFrequency(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	w := trailingWindow(p.Snapshots)
	if len(w) < 2 {
		return 0, false
	}
	first, last := w[0].At, w[0].At
	for _, s := range w[1:] {
		if s.At.Before(first) {
			first = s.At
		}
		if s.At.After(last) {
			last = s.At
		}
	}
	weeks := last.Sub(first).Hours() / (24 * 7)
	if weeks <= 0 {
		return 0, false
	}
	return float64(len(w)-1) / weeks, true
}

// conversationRate is the share of interactions that are comments or shares.
func conversationRate(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	var talk, all int64
	for _, s := range trailingWindow(p.Snapshots) {
		talk += s.Comments + s.Shares
		all += s.Interactions()
	}
	if all == 0 {
		return 0, false
	}
	return float64(talk) / float64(all), true
}

// engagementTrend compares the engagement rate of the newer half of the
// window with the older half: recent/older - 1.
func engagementTrend(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	var viewed []model.ContentSnapshot
	for _, s := range trailingWindow(p.Snapshots) {
		if s.Views > 0 {
			viewed = append(viewed, s)
		}
	}
	if len(viewed) < 4 {
		return 0, false
	}
	mid := len(viewed) / 2
	older, recent := rateOf(viewed[:mid]), rateOf(viewed[mid:])
	if older == 0 {
		return 0, false
	}
	return recent/older - 1, true
}

func rateOf(snaps []model.ContentSnapshot) float64 {
	var inter, views int64
	for _, s := range snaps {
		inter += s.Interactions()
		views += s.Views
	}
	if views == 0 {
		return 0
	}
	return float64(inter) / float64(views)
}

func nicheBreadth(e Entity) (float64, bool) {
	p := profileOf(e)
	if p == nil {
		return 0, false
	}
	seen := make(map[string]struct{}, len(p.NicheTags))
	for _, t := range p.NicheTags {
		if t = normalizeTag(t); t != "" {
			seen[t] = struct{}{}
		}
	}
	return float64(len(seen)), true
}
