// Package storage provides database abstractions.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by Update when concurrent writers kept
	// invalidating the transaction. Nothing was written; retry later.
	ErrConflict = errors.New("transaction conflict")
)

// Reader is the read half of DB and Txn.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Txn is a read-write view inside Update. Writes become visible to other
// callers only when the enclosing Update returns nil.
type Txn interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

// DB is the interface for key-value storage.
type DB interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// Update runs fn in a read-write transaction. Every write made through
	// the Txn commits together if fn returns nil and is discarded otherwise.
	Update(fn func(txn Txn) error) error
	// View runs fn against a consistent read-only snapshot.
	View(fn func(txn Reader) error) error
	Close() error
}
