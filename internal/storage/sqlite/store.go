// Package sqlite provides the default local Store backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/tuml/internal/blog"
)

const schema = `
CREATE TABLE IF NOT EXISTS blogs (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT    NOT NULL UNIQUE,
	state           TEXT    NOT NULL,
	meta            TEXT,
	post_count      INTEGER NOT NULL DEFAULT 0,
	last_post_seen  INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0,
	last_visited_at INTEGER NOT NULL DEFAULT 0,
	age_hours       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS blogs_state_idx ON blogs (state, seq);
CREATE TABLE IF NOT EXISTS calls (
	id              TEXT    PRIMARY KEY,
	ts              INTEGER NOT NULL,
	operation       TEXT    NOT NULL,
	quantity        INTEGER NOT NULL,
	duration_micros INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calls_ts_idx ON calls (ts);
`

const blogColumns = `name, state, meta, post_count, last_post_seen, updated_at, last_visited_at, age_hours`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

// Store persists blogs and ledger rows in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Reset drops all tables and recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS blogs; DROP TABLE IF EXISTS calls;`); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return s.migrate(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get fetches a record by name.
func (s *Store) Get(ctx context.Context, name string) (blog.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	res, err := s.db.ExecContext(ctx, `
INSERT INTO blogs (`+blogColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO NOTHING`,
		rec.Name, string(rec.State), meta, rec.PostCount, rec.LastPostSeen,
		toMicros(rec.UpdatedAt), toMicros(rec.LastVisitedAt), rec.AgeHours,
	)
	if err != nil {
		return fmt.Errorf("insert blog %q: %w", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert blog %q: rows affected: %w", rec.Name, err)
	}
	if n == 0 {
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
	res, err := s.db.ExecContext(ctx, `
UPDATE blogs SET state = ?, meta = ?, post_count = ?, last_post_seen = ?,
	updated_at = ?, last_visited_at = ?, age_hours = ?
WHERE name = ?`,
		string(rec.State), meta, rec.PostCount, rec.LastPostSeen,
		toMicros(rec.UpdatedAt), toMicros(rec.LastVisitedAt), rec.AgeHours, rec.Name,
	)
	if err != nil {
		return fmt.Errorf("update blog %q: %w", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update blog %q: rows affected: %w", rec.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("save %q: %w", rec.Name, blog.ErrNotFound)
	}
	return nil
}

// ListByState returns records in the given state in insertion order.
func (s *Store) ListByState(ctx context.Context, state blog.State) ([]blog.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE state = ? ORDER BY seq`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list %s blogs: %w", state, err)
	}
	return collect(rows)
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]blog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blogColumns+` FROM blogs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return collect(rows)
}

// Record appends a ledger row.
func (s *Store) Record(ctx context.Context, call blog.CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, ts, operation, quantity, duration_micros) VALUES (?, ?, ?, ?, ?)`,
		call.ID, toMicros(call.Timestamp), string(call.Operation), call.Quantity, call.DurationMicros,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// CountSince counts ledger rows at or after since.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE ts >= ?`, toMicros(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (blog.Record, error) {
	var (
		rec                  blog.Record
		state                string
		meta                 sql.NullString
		updatedAt, visitedAt int64
	)
	if err := row.Scan(&rec.Name, &state, &meta, &rec.PostCount, &rec.LastPostSeen,
		&updatedAt, &visitedAt, &rec.AgeHours); err != nil {
		return blog.Record{}, err
	}
	rec.State = blog.State(state)
	rec.UpdatedAt = fromMicros(updatedAt)
	rec.LastVisitedAt = fromMicros(visitedAt)
	if meta.Valid && meta.String != "" {
		rec.Meta = &blog.Metadata{}
		if err := json.Unmarshal([]byte(meta.String), rec.Meta); err != nil {
			return blog.Record{}, fmt.Errorf("decode meta for %q: %w", rec.Name, err)
		}
	}
	return rec, nil
}

func collect(rows *sql.Rows) ([]blog.Record, error) {
	defer func() { _ = rows.Close() }()
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

func encodeMeta(meta *blog.Metadata) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode meta: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}
