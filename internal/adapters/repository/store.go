// Package repository persists influencer profiles and alert rules.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/model"
)

// ProfileStore is read by the valuation pipeline and written by ingestion.
type ProfileStore interface {
	// Get returns the profile with its snapshots in time order.
	// Returns ErrNotFound if the profile is unknown.
	Get(ctx context.Context, platformID string) (*model.InfluencerProfile, error)
	// Put inserts or replaces the profile attributes. Snapshots are appended,
	// existing ones are kept.
	Put(ctx context.Context, p *model.InfluencerProfile) error
}

// RuleStore owns alert rules. Save is a compare-and-swap on Version.
type RuleStore interface {
	alerting.AlertStore
	GetRule(ctx context.Context, id string) (model.AlertRule, error)
	Create(ctx context.Context, rule model.AlertRule) (model.AlertRule, error)
	Delete(ctx context.Context, id string) error
}

// Store is both stores behind one backend.
type Store interface {
	ProfileStore
	RuleStore
	Close() error
}

const editAttempts = 3

// EditRule applies a user edit on top of the latest stored rule. The edited
// rule must be valid. A racing evaluation save is retried so the edit lands.
func EditRule(ctx context.Context, s RuleStore, id string, edit model.RuleEdit, now time.Time) (model.AlertRule, error) {
	var lastErr error
	for range editAttempts {
		cur, err := s.GetRule(ctx, id)
		if err != nil {
			return model.AlertRule{}, err
		}
		next := cur.Edit(edit, now)
		if _, err := alerting.Validate(next); err != nil {
			return model.AlertRule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		saved, err := s.Save(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return model.AlertRule{}, err
		}
		lastErr = err
	}
	return model.AlertRule{}, fmt.Errorf("edit rule %s: %w", id, lastErr)
}

func checkProfile(p *model.InfluencerProfile) error {
	if p == nil || strings.TrimSpace(p.PlatformID) == "" {
		return fmt.Errorf("%w: missing platform id", ErrInvalidProfile)
	}
	return nil
}

// prepareRule validates a new rule and resets its evaluation state.
func prepareRule(r model.AlertRule, id string, now time.Time) (model.AlertRule, error) {
	if strings.TrimSpace(r.OwnerID) == "" {
		return model.AlertRule{}, fmt.Errorf("%w: missing owner", ErrInvalidRule)
	}
	if _, err := alerting.Validate(r); err != nil {
		return model.AlertRule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	c := r.Clone()
	c.ID = id
	c.State = model.StateArmed
	c.CooldownUntil = time.Time{}
	c.LastValues = nil
	c.Invalid = false
	c.InvalidReason = ""
	c.Version = 1
	c.UpdatedAt = now
	return c, nil
}
