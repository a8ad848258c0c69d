// Package postgres provides a Postgres-backed Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tuml/internal/blog"
)

const schema = `
CREATE TABLE IF NOT EXISTS blogs (
	seq             BIGSERIAL   PRIMARY KEY,
	name            TEXT        NOT NULL UNIQUE,
	state           TEXT        NOT NULL,
	meta            JSONB,
	post_count      INTEGER     NOT NULL DEFAULT 0,
	last_post_seen  INTEGER     NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL,
	last_visited_at TIMESTAMPTZ NOT NULL,
	age_hours       INTEGER     NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS blogs_state_idx ON blogs (state, seq);
CREATE TABLE IF NOT EXISTS calls (
	id              TEXT        PRIMARY KEY,
	ts              TIMESTAMPTZ NOT NULL,
	operation       TEXT        NOT NULL,
	quantity        INTEGER     NOT NULL,
	duration_micros BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS calls_ts_idx ON calls (ts);
`

const blogColumns = `name, state, meta, post_count, last_post_seen, updated_at, last_visited_at, age_hours`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists blogs and ledger rows in Postgres.
type Store struct {
	pool pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Reset drops all tables and recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS blogs, calls`); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return s.Migrate(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Get fetches a record by name.
func (s *Store) Get(ctx context.Context, name string) (blog.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+blogColumns+` FROM blogs WHERE name = $1`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return blog.Record{}, fmt.Errorf("get %q: %w", name, blog.ErrNotFound)
	}
	if err != nil {
		return blog.Record{}, fmt.Errorf("get %q: %w", name, err)
	}
	return rec, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, rec blog.Record) error {
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO blogs (`+blogColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name) DO NOTHING`,
		rec.Name, string(rec.State), meta, rec.PostCount, rec.LastPostSeen,
		rec.UpdatedAt, rec.LastVisitedAt, rec.AgeHours,
	)
	if err != nil {
		return fmt.Errorf("insert blog %q: %w", rec.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create %q: %w", rec.Name, blog.ErrExists)
	}
	return nil
}

// Save overwrites an existing record.
func (s *Store) Save(ctx context.Context, rec blog.Record) error {
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE blogs SET state = $2, meta = $3, post_count = $4, last_post_seen = $5,
	updated_at = $6, last_visited_at = $7, age_hours = $8
WHERE name = $1`,
		rec.Name, string(rec.State), meta, rec.PostCount, rec.LastPostSeen,
		rec.UpdatedAt, rec.LastVisitedAt, rec.AgeHours,
	)
	if err != nil {
		return fmt.Errorf("update blog %q: %w", rec.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save %q: %w", rec.Name, blog.ErrNotFound)
	}
	return nil
}

// ListByState returns records in the given state in insertion order.
func (s *Store) ListByState(ctx context.Context, state blog.State) ([]blog.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE state = $1 ORDER BY seq`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list %s blogs: %w", state, err)
	}
	return collect(rows)
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]blog.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+blogColumns+` FROM blogs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return collect(rows)
}

// Record appends a ledger row.
func (s *Store) Record(ctx context.Context, call blog.CallRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, ts, operation, quantity, duration_micros) VALUES ($1, $2, $3, $4, $5)`,
		call.ID, call.Timestamp, string(call.Operation), call.Quantity, call.DurationMicros,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// CountSince counts ledger rows at or after since.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM calls WHERE ts >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return int(n), nil
}

func scanRecord(row pgx.Row) (blog.Record, error) {
	var (
		rec   blog.Record
		state string
		meta  []byte
	)
	if err := row.Scan(&rec.Name, &state, &meta, &rec.PostCount, &rec.LastPostSeen,
		&rec.UpdatedAt, &rec.LastVisitedAt, &rec.AgeHours); err != nil {
		return blog.Record{}, err
	}
	rec.State = blog.State(state)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.LastVisitedAt = rec.LastVisitedAt.UTC()
	if len(meta) > 0 {
		rec.Meta = &blog.Metadata{}
		if err := json.Unmarshal(meta, rec.Meta); err != nil {
			return blog.Record{}, fmt.Errorf("decode meta for %q: %w", rec.Name, err)
		}
	}
	return rec, nil
}

func collect(rows pgx.Rows) ([]blog.Record, error) {
	defer rows.Close()
	var out []blog.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blog: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blogs: %w", err)
	}
	return out, nil
}

func encodeMeta(meta *blog.Metadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return b, nil
}
