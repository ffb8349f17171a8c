// Package kv defines the durable key-value store boundary.
//
// Reranker weights and pending message buffers are persisted through this
// interface, keyed by a namespace path that always includes the user id, so
// records for different users never collide. Saves are unconditional
// overwrites (last write wins); the surrounding orchestration is assumed to
// serialize turns per user.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrStore is returned when the backing store fails.
var ErrStore = errors.New("kv store failure")

// Record is a stored value with its write timestamps.
type Record struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists raw JSON values under a namespace path and key.
type Store interface {
	// Get retrieves a record. Returns (nil, nil) when the key is absent;
	// a non-nil error means the backend itself failed.
	Get(ctx context.Context, namespace []string, key string) (*Record, error)

	// Put stores a value, overwriting any previous record under the same
	// namespace and key. CreatedAt is preserved across overwrites.
	Put(ctx context.Context, namespace []string, key string, value json.RawMessage) error

	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace []string, key string) error

	// Close releases store resources.
	Close() error
}

// Path flattens a namespace and key into a single storage key. The separator
// is a character forbidden in namespace elements.
func Path(namespace []string, key string) string {
	return strings.Join(append(append([]string{}, namespace...), key), "\x1f")
}
