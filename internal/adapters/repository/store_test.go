package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time { return func() time.Time { return t0 } }

func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("rule-%03d", n), nil
	}
}

func ptr[T any](v T) *T { return &v }

func sampleProfile() *model.InfluencerProfile {
	return &model.InfluencerProfile{
		PlatformID:     "ig:alice",
		Platform:       model.PlatformInstagram,
		Username:       "alice",
		NicheTags:      []string{"fitness", "travel"},
		FollowerCount:  ptr[int64](10000),
		EngagementRate: ptr(0.02),
		Snapshots: []model.ContentSnapshot{
			{At: t0.Add(-48 * time.Hour), Likes: 100, Comments: 10, Shares: 5, Views: 2000},
			{At: t0.Add(-24 * time.Hour), Likes: 120, Comments: 12, Shares: 4},
		},
	}
}

func sampleRule() model.AlertRule {
	return model.AlertRule{
		OwnerID:   "brand-1",
		Target:    "influencer:ig:alice",
		Metric:    model.MetricMarketValue,
		Operator:  model.OpCrossesAbove,
		Threshold: 70,
		Cooldown:  time.Hour,
		// Evaluation state on input is ignored by Create.
		State:   model.StateCooldown,
		Version: 9,
	}
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(WithClock(fixedClock()), WithIDGenerator(sequentialIDs())))
	})
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sphere.db")
		s, err := Open(context.Background(), SQLite, path,
			WithClock(fixedClock()), WithIDGenerator(sequentialIDs()), WithLogger(logger.Discard()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestProfileRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Get(ctx, "ig:alice")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Put(ctx, sampleProfile()))
		got, err := s.Get(ctx, "ig:alice")
		require.NoError(t, err)
		assert.Equal(t, model.PlatformInstagram, got.Platform)
		assert.Equal(t, []string{"fitness", "travel"}, got.NicheTags)
		require.NotNil(t, got.FollowerCount)
		assert.Equal(t, int64(10000), *got.FollowerCount)
		require.NotNil(t, got.EngagementRate)
		assert.InDelta(t, 0.02, *got.EngagementRate, 1e-12)
		require.Len(t, got.Snapshots, 2)
		assert.True(t, got.Snapshots[0].At.Equal(t0.Add(-48*time.Hour)))
		assert.Equal(t, int64(0), got.Snapshots[1].Views)
	})
}

func TestProfilePutAppendsSnapshots(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, sampleProfile()))

		update := sampleProfile()
		update.FollowerCount = nil
		update.Snapshots = []model.ContentSnapshot{
			{At: t0.Add(-24 * time.Hour), Likes: 999}, // already stored, kept as is
			{At: t0, Likes: 140, Comments: 20, Shares: 6, Views: 3000},
		}
		require.NoError(t, s.Put(ctx, update))

		got, err := s.Get(ctx, "ig:alice")
		require.NoError(t, err)
		assert.Nil(t, got.FollowerCount)
		require.Len(t, got.Snapshots, 3)
		assert.Equal(t, int64(120), got.Snapshots[1].Likes)
		assert.True(t, got.Snapshots[2].At.Equal(t0))
	})
}

func TestProfilePutKeysSnapshotsByPost(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := sampleProfile()
		p.Snapshots = []model.ContentSnapshot{
			{PostID: "reel-2", At: t0, Likes: 80},
			{PostID: "reel-1", At: t0, Likes: 50},
		}
		require.NoError(t, s.Put(ctx, p))

		replay := sampleProfile()
		replay.Snapshots = []model.ContentSnapshot{
			{PostID: "reel-1", At: t0, Likes: 999}, // same post, kept as is
			{PostID: "reel-3", At: t0, Likes: 30},
		}
		require.NoError(t, s.Put(ctx, replay))

		got, err := s.Get(ctx, "ig:alice")
		require.NoError(t, err)
		require.Len(t, got.Snapshots, 3)
		assert.Equal(t, "reel-1", got.Snapshots[0].PostID)
		assert.Equal(t, int64(50), got.Snapshots[0].Likes)
		assert.Equal(t, "reel-2", got.Snapshots[1].PostID)
		assert.Equal(t, "reel-3", got.Snapshots[2].PostID)
	})
}

func TestProfileRejectsMissingID(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.Put(context.Background(), &model.InfluencerProfile{})
		require.ErrorIs(t, err, ErrInvalidProfile)
	})
}

func TestRuleLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, sampleRule())
		require.NoError(t, err)
		assert.Equal(t, "rule-001", created.ID)
		assert.Equal(t, model.StateArmed, created.State)
		assert.Equal(t, int64(1), created.Version)

		fired := created.Clone()
		fired.State = model.StateCooldown
		fired.CooldownUntil = t0.Add(time.Hour)
		fired.LastValues = map[string]float64{"ig:alice": 72.5}
		saved, err := s.Save(ctx, fired)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)

		got, err := s.GetRule(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StateCooldown, got.State)
		assert.True(t, got.CooldownUntil.Equal(t0.Add(time.Hour)))
		assert.Equal(t, map[string]float64{"ig:alice": 72.5}, got.LastValues)
		assert.Equal(t, time.Hour, got.Cooldown)
		assert.Equal(t, int64(2), got.Version)

		// A save computed from the stale version loses.
		_, err = s.Save(ctx, fired)
		require.ErrorIs(t, err, ErrVersionConflict)

		rules, err := s.ListRules(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 1)

		require.NoError(t, s.Delete(ctx, created.ID))
		require.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
		_, err = s.Save(ctx, got)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRuleCreateValidates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		bad := sampleRule()
		bad.Operator = "between"
		_, err := s.Create(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidRule)

		bad = sampleRule()
		bad.OwnerID = ""
		_, err = s.Create(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestEditRuleRearms(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, sampleRule())
		require.NoError(t, err)

		cooling := created.Clone()
		cooling.State = model.StateCooldown
		cooling.CooldownUntil = t0.Add(time.Hour)
		_, err = s.Save(ctx, cooling)
		require.NoError(t, err)

		edited, err := EditRule(ctx, s, created.ID, model.RuleEdit{Threshold: ptr(80.0)}, t0)
		require.NoError(t, err)
		assert.Equal(t, 80.0, edited.Threshold)
		assert.Equal(t, model.StateArmed, edited.State)
		assert.True(t, edited.CooldownUntil.IsZero())
		assert.Equal(t, int64(3), edited.Version)

		_, err = EditRule(ctx, s, "missing", model.RuleEdit{}, t0)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", Postgres.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "x = ?", SQLite.rebind("x = ?"))
}

func TestEditRuleRejectsInvalid(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, sampleRule())
		require.NoError(t, err)

		_, err = EditRule(ctx, s, created.ID, model.RuleEdit{Target: ptr("planet:mars")}, t0)
		require.ErrorIs(t, err, ErrInvalidRule)

		got, err := s.GetRule(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
	})
}
