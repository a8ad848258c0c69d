// Package store defines the persistence contract for the blog registry and call
// ledger. Implementations live in internal/storage; this package must not import
// database drivers or concrete clients.
package store
