package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound distinguishes "key absent" from storage failures. Callers that
// implement degrade-to-absent semantics check for it with errors.Is.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the injectable durable-storage capability the session layer is
// built on. Modeling it as a narrow get/set/remove surface keeps the session store
// swappable between file, Redis and in-memory backends, and lets tests run against
// a fake without touching real storage.
type KeyValueStore interface {
	// Get returns the stored value or ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, overwriting any previous value (last write wins).
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
