// Package store holds the persistence capabilities: a small key-value Store
// used for client-local state (memory, JSON files or SQLite) and the
// server-side usage ledger in Postgres.
package store

import "errors"

// ErrNotFound is returned by Get when a key has never been set.
var ErrNotFound = errors.New("store: key not found")

// Store is a string key-value store. Callers treat every operation as
// best-effort.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
