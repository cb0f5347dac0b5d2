package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect selects the SQL flavour of a backend.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store on postgres or sqlite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	opts    options
}

var _ Store = (*SQLStore)(nil)

// Open connects to dsn with the given dialect, checks the connection and
// applies pending migrations.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	var driver string
	switch dialect {
	case Postgres:
		driver = "postgres"
	case SQLite:
		driver = "sqlite"
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		// One writer; also keeps an in-memory database alive across calls.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(db, dialect, opts...), nil
}

// sqliteDSN adds the pragmas every connection needs.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}

// New wraps an open database. Migrations are the caller's business.
func New(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("repository")
	}
	return &SQLStore{db: db, dialect: dialect, opts: o}
}

// Migrate applies the embedded migrations to db.
func Migrate(db *sql.DB, dialect Dialect) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch dialect {
	case Postgres:
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite:
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		err = fmt.Errorf("unknown sql dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

// Get implements ProfileStore.
func (s *SQLStore) Get(ctx context.Context, platformID string) (*model.InfluencerProfile, error) {
	var (
		p         model.InfluencerProfile
		platform  string
		tags      string
		followers sql.NullInt64
		rate      sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT platform_id, platform, username, niche_tags, follower_count, engagement_rate
		 FROM profiles WHERE platform_id = ?`), platformID).
		Scan(&p.PlatformID, &platform, &p.Username, &tags, &followers, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", platformID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", platformID, err)
	}
	p.Platform = model.Platform(platform)
	if err := json.Unmarshal([]byte(tags), &p.NicheTags); err != nil {
		return nil, fmt.Errorf("decode niche tags of %s: %w", platformID, err)
	}
	if followers.Valid {
		v := followers.Int64
		p.FollowerCount = &v
	}
	if rate.Valid {
		v := rate.Float64
		p.EngagementRate = &v
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT post_id, at, likes, comments, shares, views
		 FROM snapshots WHERE platform_id = ? ORDER BY at ASC, post_id ASC`), platformID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", platformID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			snap model.ContentSnapshot
			at   int64
		)
		if err := rows.Scan(&snap.PostID, &at, &snap.Likes, &snap.Comments, &snap.Shares, &snap.Views); err != nil {
			return nil, fmt.Errorf("scan snapshot of %s: %w", platformID, err)
		}
		snap.At = time.UnixMilli(at).UTC()
		p.Snapshots = append(p.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", platformID, err)
	}
	return &p, nil
}

// Put implements ProfileStore.
func (s *SQLStore) Put(ctx context.Context, p *model.InfluencerProfile) error {
	if err := checkProfile(p); err != nil {
		return err
	}
	tags, err := json.Marshal(nonNilTags(p.NicheTags))
	if err != nil {
		return fmt.Errorf("encode niche tags: %w", err)
	}
	var (
		followers sql.NullInt64
		rate      sql.NullFloat64
	)
	if p.FollowerCount != nil {
		followers = sql.NullInt64{Int64: *p.FollowerCount, Valid: true}
	}
	if p.EngagementRate != nil {
		rate = sql.NullFloat64{Float64: *p.EngagementRate, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, s.q(
		`INSERT INTO profiles (platform_id, platform, username, niche_tags, follower_count, engagement_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (platform_id) DO UPDATE SET
		   platform = excluded.platform,
		   username = excluded.username,
		   niche_tags = excluded.niche_tags,
		   follower_count = excluded.follower_count,
		   engagement_rate = excluded.engagement_rate,
		   updated_at = excluded.updated_at`),
		p.PlatformID, string(p.Platform), p.Username, string(tags), followers, rate, s.opts.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.PlatformID, err)
	}

	for _, snap := range p.Snapshots {
		if _, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO snapshots (platform_id, at, post_id, likes, comments, shares, views)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (platform_id, at, post_id) DO NOTHING`),
			p.PlatformID, snap.At.UnixMilli(), snap.PostID, snap.Likes, snap.Comments, snap.Shares, snap.Views,
		); err != nil {
			return fmt.Errorf("insert snapshot of %s: %w", p.PlatformID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile %s: %w", p.PlatformID, err)
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

const ruleColumns = `id, owner_id, target, metric, operator, threshold, cooldown_ms, state,
	cooldown_until, last_values, invalid, invalid_reason, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (model.AlertRule, error) {
	var (
		r                         model.AlertRule
		metric, op, state, values string
		cooldownMS, until         int64
		invalid                   int
		updated                   int64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Target, &metric, &op, &r.Threshold, &cooldownMS, &state,
		&until, &values, &invalid, &r.InvalidReason, &r.Version, &updated); err != nil {
		return model.AlertRule{}, err
	}
	r.Metric = model.Metric(metric)
	r.Operator = model.Operator(op)
	r.State = model.AlertState(state)
	r.Cooldown = time.Duration(cooldownMS) * time.Millisecond
	if until > 0 {
		r.CooldownUntil = time.UnixMilli(until).UTC()
	}
	if values != "" && values != "{}" {
		if err := json.Unmarshal([]byte(values), &r.LastValues); err != nil {
			return model.AlertRule{}, fmt.Errorf("decode last values of %s: %w", r.ID, err)
		}
	}
	r.Invalid = invalid != 0
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

// ruleArgs returns the mutable columns in ruleColumns order, without id,
// version and updated_at.
func ruleArgs(r model.AlertRule) ([]any, error) {
	values := r.LastValues
	if values == nil {
		values = map[string]float64{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode last values: %w", err)
	}
	var until int64
	if !r.CooldownUntil.IsZero() {
		until = r.CooldownUntil.UnixMilli()
	}
	invalid := 0
	if r.Invalid {
		invalid = 1
	}
	return []any{
		r.OwnerID, r.Target, string(r.Metric), string(r.Operator), r.Threshold,
		r.Cooldown.Milliseconds(), string(r.State), until, string(encoded), invalid, r.InvalidReason,
	}, nil
}

// ListRules implements alerting.AlertStore. Rules come back ordered by id.
func (s *SQLStore) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []model.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

// GetRule returns one rule.
func (s *SQLStore) GetRule(ctx context.Context, id string) (model.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`), id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("get rule %s: %w", id, err)
	}
	return r, nil
}

// Create stores a new rule with a generated id, armed at version 1.
func (s *SQLStore) Create(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	id, err := s.opts.newID()
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("generate rule id: %w", err)
	}
	r, err := prepareRule(rule, id, s.opts.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return model.AlertRule{}, err
	}
	args, err := ruleArgs(r)
	if err != nil {
		return model.AlertRule{}, err
	}
	args = append([]any{r.ID}, args...)
	args = append(args, r.Version, r.UpdatedAt.UnixMilli())
	if _, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...); err != nil {
		return model.AlertRule{}, fmt.Errorf("insert rule: %w", err)
	}
	s.opts.logger.Debug(ctx, "rule created", logger.String("rule_id", r.ID), logger.String("owner_id", r.OwnerID))
	return r, nil
}

// Save implements alerting.AlertStore with a compare-and-swap on version.
func (s *SQLStore) Save(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	args, err := ruleArgs(rule)
	if err != nil {
		return model.AlertRule{}, err
	}
	now := s.opts.now().UTC().Truncate(time.Millisecond)
	args = append(args, now.UnixMilli(), rule.ID, rule.Version)
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE alert_rules SET
		   owner_id = ?, target = ?, metric = ?, operator = ?, threshold = ?, cooldown_ms = ?,
		   state = ?, cooldown_until = ?, last_values = ?, invalid = ?, invalid_reason = ?,
		   version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`), args...)
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if n == 0 {
		return model.AlertRule{}, s.missOrConflict(ctx, rule)
	}
	saved := rule.Clone()
	saved.Version = rule.Version + 1
	saved.UpdatedAt = now
	return saved, nil
}

// missOrConflict explains why a versioned update touched no row.
func (s *SQLStore) missOrConflict(ctx context.Context, rule model.AlertRule) error {
	var version int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT version FROM alert_rules WHERE id = ?`), rule.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check rule %s: %w", rule.ID, err)
	}
	return fmt.Errorf("rule %s at version %d, have %d: %w", rule.ID, version, rule.Version, ErrVersionConflict)
}

// Delete removes a rule.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM alert_rules WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}
