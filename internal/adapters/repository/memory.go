package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/sphere/internal/domain/model"
)

// MemoryStore keeps profiles and rules in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*model.InfluencerProfile
	rules    map[string]model.AlertRule
	opts     options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		profiles: make(map[string]*model.InfluencerProfile),
		rules:    make(map[string]model.AlertRule),
		opts:     o,
	}
}

// Get implements ProfileStore.
func (s *MemoryStore) Get(ctx context.Context, platformID string) (*model.InfluencerProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[platformID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", platformID, ErrNotFound)
	}
	return p.Clone(), nil
}

// Put implements ProfileStore.
func (s *MemoryStore) Put(ctx context.Context, p *model.InfluencerProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkProfile(p); err != nil {
		return err
	}
	next := p.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.profiles[p.PlatformID]; ok {
		next.Snapshots = mergeSnapshots(cur.Snapshots, next.Snapshots)
	} else {
		next.Snapshots = mergeSnapshots(nil, next.Snapshots)
	}
	s.profiles[p.PlatformID] = next
	return nil
}

// mergeSnapshots appends incoming snapshots that are not stored yet and keeps
// the result ordered by time, then post id. A snapshot is already stored when
// one with the same post id and time exists.
func mergeSnapshots(stored, incoming []model.ContentSnapshot) []model.ContentSnapshot {
	out := slices.Clone(stored)
	for _, in := range incoming {
		dup := slices.ContainsFunc(out, func(s model.ContentSnapshot) bool {
			return s.PostID == in.PostID && s.At.Equal(in.At)
		})
		if !dup {
			out = append(out, in)
		}
	}
	slices.SortStableFunc(out, func(a, b model.ContentSnapshot) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(a.PostID, b.PostID)
	})
	return out
}

// ListRules implements alerting.AlertStore. Rules come back ordered by id.
func (s *MemoryStore) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b model.AlertRule) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetRule returns one rule.
func (s *MemoryStore) GetRule(ctx context.Context, id string) (model.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return model.AlertRule{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return model.AlertRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

// Create stores a new rule with a generated id, armed at version 1.
func (s *MemoryStore) Create(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return model.AlertRule{}, err
	}
	id, err := s.opts.newID()
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("generate rule id: %w", err)
	}
	r, err := prepareRule(rule, id, s.opts.now())
	if err != nil {
		return model.AlertRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[id] = r
	return r.Clone(), nil
}

// Save implements alerting.AlertStore.
func (s *MemoryStore) Save(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return model.AlertRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rules[rule.ID]
	if !ok {
		return model.AlertRule{}, fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	if cur.Version != rule.Version {
		return model.AlertRule{}, fmt.Errorf("rule %s at version %d, have %d: %w", rule.ID, cur.Version, rule.Version, ErrVersionConflict)
	}
	next := rule.Clone()
	next.Version = cur.Version + 1
	next.UpdatedAt = s.opts.now()
	s.rules[rule.ID] = next
	return next.Clone(), nil
}

// Delete removes a rule.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
