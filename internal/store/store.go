package store

import (
	"context"

	"github.com/JakeFAU/tuml/internal/blog"
)

// Store is the full persistence boundary: registry rows keyed by blog name plus
// the append-only call ledger.
type Store interface {
	blog.Registry
	blog.Ledger
	// Reset drops all persisted state and recreates an empty schema.
	Reset(ctx context.Context) error
	// Close releases connections.
	Close() error
}
