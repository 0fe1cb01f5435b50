package session

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by the store factory.
var (
	// ErrInvalidStoreType indicates an unknown store driver name.
	ErrInvalidStoreType = errors.New("session: invalid store type")

	// ErrInvalidConfig indicates a driver was selected without the
	// options it requires.
	ErrInvalidConfig = errors.New("session: invalid store configuration")
)

// Store is the uniform key/expiry/list-append capability the session manager
// is built on. Keys either hold a single value with an expiry (session
// markers) or an append-only list sharing one expiry (history). Expiry is
// whole-key: when it fires the key and everything under it is gone.
//
// Implementations must keep a single key's read-modify-write atomic, even
// though the orchestrating process is single-threaded, so the contract stays
// correct if the backend is shared with other writers.
type Store interface {
	// Exists reports whether a non-expired value is present for key.
	Exists(ctx context.Context, key string) (bool, error)

	// PutEx writes value under key with a fresh ttl, replacing any
	// previous value and expiry.
	PutEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Append pushes value onto the list stored at key, creating the list
	// if needed. Insertion order is preserved.
	Append(ctx context.Context, key, value string) error

	// Refresh resets the expiry of key to ttl from now, creating the
	// expiry marker if the backend needs one.
	Refresh(ctx context.Context, key string, ttl time.Duration) error

	// List returns the list stored at key in insertion order. A missing
	// or expired key yields an empty result, not an error.
	List(ctx context.Context, key string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
