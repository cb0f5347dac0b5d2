package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func newPostgres(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	return New(db, Postgres, WithClock(fixedClock()), WithLogger(logger.Discard())), mock
}

var ruleRowColumns = []string{
	"id", "owner_id", "target", "metric", "operator", "threshold", "cooldown_ms", "state",
	"cooldown_until", "last_values", "invalid", "invalid_reason", "version", "updated_at",
}

func TestPostgresGetProfile(t *testing.T) {
	s, mock := newPostgres(t)
	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE platform_id = \$1`).WithArgs("yt:bob").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id", "platform", "username", "niche_tags", "follower_count", "engagement_rate"}).
			AddRow("yt:bob", "youtube", "bob", `["gaming"]`, 5000, nil))
	mock.ExpectQuery(`SELECT .+ FROM snapshots WHERE platform_id = \$1 ORDER BY at ASC, post_id ASC`).WithArgs("yt:bob").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "at", "likes", "comments", "shares", "views"}).
			AddRow("v-1", t0.UnixMilli(), 10, 2, 1, 400))

	p, err := s.Get(context.Background(), "yt:bob")
	require.NoError(t, err)
	assert.Equal(t, model.PlatformYouTube, p.Platform)
	assert.Equal(t, []string{"gaming"}, p.NicheTags)
	require.NotNil(t, p.FollowerCount)
	assert.Nil(t, p.EngagementRate)
	require.Len(t, p.Snapshots, 1)
	assert.True(t, p.Snapshots[0].At.Equal(t0))
	assert.Equal(t, "v-1", p.Snapshots[0].PostID)
}

func TestPostgresGetProfileNotFound(t *testing.T) {
	s, mock := newPostgres(t)
	mock.ExpectQuery(`SELECT .+ FROM profiles`).WithArgs("nobody").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresSaveConflict(t *testing.T) {
	s, mock := newPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE alert_rules SET`) + `.+` + regexp.QuoteMeta(`WHERE id = $13 AND version = $14`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM alert_rules WHERE id = $1`)).WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

	rule := sampleRule()
	rule.ID = "r1"
	rule.Version = 3
	_, err := s.Save(context.Background(), rule)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestPostgresSaveBumpsVersion(t *testing.T) {
	s, mock := newPostgres(t)
	mock.ExpectExec(`UPDATE alert_rules SET .+ version = version \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rule := sampleRule()
	rule.ID = "r1"
	rule.Version = 3
	saved, err := s.Save(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.True(t, saved.UpdatedAt.Equal(t0))
}

func TestPostgresListRules(t *testing.T) {
	s, mock := newPostgres(t)
	mock.ExpectQuery(`SELECT .+ FROM alert_rules ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(ruleRowColumns).
			AddRow("r1", "brand-1", "niche:fitness", "market_value", "gte", 50.0, 0, "ARMED", 0, "{}", 0, "", 1, t0.UnixMilli()).
			AddRow("r2", "brand-2", "bogus", "plep", "lte", 10.0, 60000, "ARMED", 0, `{"ig:a":3}`, 1, "malformed selector", 2, t0.UnixMilli()))

	rules, err := s.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Nil(t, rules[0].LastValues)
	assert.True(t, rules[1].Invalid)
	assert.Equal(t, 3.0, rules[1].LastValues["ig:a"])
	assert.Equal(t, "malformed selector", rules[1].InvalidReason)
}
