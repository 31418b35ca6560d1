// Package store provides the content store abstraction for raw document
// bytes. Objects are addressed by key within a single configured bucket and
// are immutable once written; the upload service deletes them only as part
// of compensating cleanup or explicit administrative removal.
package store

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a key does not exist in the store.
var ErrObjectNotFound = errors.New("object not found")

// ContentStore is the object storage interface the ingestion core depends on.
type ContentStore interface {
	// Put writes an object. Existing objects with the same key are
	// overwritten byte-for-byte (keys are content-addressed, so this is
	// idempotent in practice).
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads an object. Returns ErrObjectNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
