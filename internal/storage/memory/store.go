// Package memory provides an in-memory Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/tuml/internal/blog"
)

// Store keeps registry rows in insertion order and ledger rows in append order.
type Store struct {
	mu    sync.RWMutex
	index map[string]int
	blogs []blog.Record
	calls []blog.CallRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Get fetches a record by name.
func (s *Store) Get(_ context.Context, name string) (blog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[name]
	if !ok {
		return blog.Record{}, fmt.Errorf("get %q: %w", name, blog.ErrNotFound)
	}
	return cloneRecord(s.blogs[i]), nil
}

// Create inserts a new record.
func (s *Store) Create(_ context.Context, rec blog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[rec.Name]; exists {
		return fmt.Errorf("create %q: %w", rec.Name, blog.ErrExists)
	}
	s.index[rec.Name] = len(s.blogs)
	s.blogs = append(s.blogs, cloneRecord(rec))
	return nil
}

// Save overwrites an existing record, keeping its insertion position.
func (s *Store) Save(_ context.Context, rec blog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[rec.Name]
	if !ok {
		return fmt.Errorf("save %q: %w", rec.Name, blog.ErrNotFound)
	}
	s.blogs[i] = cloneRecord(rec)
	return nil
}

// ListByState returns copies of records in the given state.
func (s *Store) ListByState(_ context.Context, state blog.State) ([]blog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []blog.Record
	for _, rec := range s.blogs {
		if rec.State == state {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// List returns copies of every record.
func (s *Store) List(_ context.Context) ([]blog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]blog.Record, 0, len(s.blogs))
	for _, rec := range s.blogs {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Record appends a call to the ledger.
func (s *Store) Record(_ context.Context, call blog.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return nil
}

// CountSince counts calls at or after since.
func (s *Store) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.calls {
		if !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// Calls returns a copy of the ledger.
func (s *Store) Calls() []blog.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]blog.CallRecord(nil), s.calls...)
}

// Reset empties the store.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]int)
	s.blogs = nil
	s.calls = nil
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneRecord(rec blog.Record) blog.Record {
	if rec.Meta != nil {
		meta := *rec.Meta
		rec.Meta = &meta
	}
	return rec
}
