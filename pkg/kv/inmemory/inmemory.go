// Package inmemory provides an in-process kv.Store for tests and local
// development. Records live in a map guarded by a read-write mutex.
package inmemory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/papercomputeco/remem/pkg/kv"
)

// Store implements kv.Store using an in-memory map.
type Store struct {
	mu sync.RWMutex

	// records maps the flattened namespace path to its record.
	records map[string]kv.Record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]kv.Record),
	}
}

// Get retrieves a record, or (nil, nil) when absent.
func (s *Store) Get(_ context.Context, namespace []string, key string) (*kv.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[kv.Path(namespace, key)]
	if !ok {
		return nil, nil
	}

	// Copy so callers cannot mutate stored state.
	value := make(json.RawMessage, len(rec.Value))
	copy(value, rec.Value)

	return &kv.Record{
		Value:     value,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// Put stores a value, preserving CreatedAt across overwrites.
func (s *Store) Put(_ context.Context, namespace []string, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := kv.Path(namespace, key)
	now := time.Now()

	stored := make(json.RawMessage, len(value))
	copy(stored, value)

	createdAt := now
	if prev, ok := s.records[path]; ok {
		createdAt = prev.CreatedAt
	}

	s.records[path] = kv.Record{
		Value:     stored,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	return nil
}

// Delete removes a record if present.
func (s *Store) Delete(_ context.Context, namespace []string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, kv.Path(namespace, key))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

var _ kv.Store = (*Store)(nil)
