package blog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the registry has no record for the requested name.
var ErrNotFound = errors.New("blog record not found")

// ErrExists signals an attempt to create a record whose name is already taken.
var ErrExists = errors.New("blog record already exists")

// Registry persists one Record per blog name.
type Registry interface {
	// Get loads a record or returns ErrNotFound.
	Get(ctx context.Context, name string) (Record, error)
	// Create inserts a new record or returns ErrExists.
	Create(ctx context.Context, rec Record) error
	// Save overwrites an existing record or returns ErrNotFound.
	Save(ctx context.Context, rec Record) error
	// ListByState returns records in the given state in insertion order.
	ListByState(ctx context.Context, state State) ([]Record, error)
	// List returns every record in insertion order.
	List(ctx context.Context) ([]Record, error)
}

// Ledger is the append-only log of remote calls.
type Ledger interface {
	Record(ctx context.Context, call CallRecord) error
	// CountSince counts calls whose timestamp is at or after since.
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces ledger row IDs.
type IDGenerator interface {
	NewID() (string, error)
}
