package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "store")

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Counter is a shared integer cell owned by stateful tools.
// Implementations are safe for concurrent use.
type Counter interface {
	// Increment adds delta and returns the new value.
	Increment(ctx context.Context, delta int64) (int64, error)
	// Value returns the current value.
	Value(ctx context.Context) (int64, error)
	// Reset sets the value to zero.
	Reset(ctx context.Context) error
}

// KV is a shared string map owned by stateful tools.
// Implementations are safe for concurrent use.
type KV interface {
	Put(ctx context.Context, key, value string) error
	// Get returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	// Keys returns the stored keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}
