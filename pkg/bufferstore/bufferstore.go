// Package bufferstore persists per-user message buffers through the durable
// key-value store.
//
// Each user has two buffer slots: the main buffer, which accumulates
// conversation turns, and a staging buffer, a frozen snapshot handed to
// asynchronous reflection. The contracts differ deliberately: loading the
// main buffer on missing or invalid data yields an empty buffer so callers
// can always append without a nil check, while loading staging yields nil
// once cleared, so "nothing staged" is never mistaken for an empty snapshot
// of unprocessed work.
package bufferstore

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/kv"
	"github.com/papercomputeco/remem/pkg/memory"
)

const recordKey = "message-buffer"

// Store persists message buffers keyed by user id.
type Store struct {
	kv     kv.Store
	scope  string
	logger *zap.Logger
}

// NewStore creates a buffer store. Scope namespaces this deployment's
// records.
func NewStore(store kv.Store, scope string, logger *zap.Logger) *Store {
	return &Store{
		kv:     store,
		scope:  scope,
		logger: logger,
	}
}

func (s *Store) namespace(userID string) []string {
	return []string{s.scope, userID, "buffer"}
}

func (s *Store) stagingNamespace(userID string) []string {
	return []string{s.scope, userID, "buffer", "staging"}
}

// Load returns the user's main buffer. Missing or invalid data yields a
// fresh empty buffer, never nil.
func (s *Store) Load(ctx context.Context, userID string) *memory.Buffer {
	buf := s.load(ctx, s.namespace(userID), userID)
	if buf == nil {
		return memory.NewBuffer()
	}
	return buf
}

// Save persists the main buffer. Returns false on store failure.
func (s *Store) Save(ctx context.Context, userID string, buf *memory.Buffer) bool {
	return s.save(ctx, s.namespace(userID), userID, buf)
}

// Clear removes the main buffer.
func (s *Store) Clear(ctx context.Context, userID string) bool {
	if err := s.kv.Delete(ctx, s.namespace(userID), recordKey); err != nil {
		s.logger.Warn("buffer clear failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Stage snapshots the current main buffer into the staging slot. The main
// buffer is left in place; the staged copy is what reflection consumes.
// Returns the staged snapshot, or nil when there was nothing to stage or the
// write failed.
func (s *Store) Stage(ctx context.Context, userID string) *memory.Buffer {
	main := s.Load(ctx, userID)
	if main.Empty() {
		return nil
	}

	snapshot := main.Clone()
	if !s.save(ctx, s.stagingNamespace(userID), userID, snapshot) {
		return nil
	}
	return snapshot
}

// LoadStaging returns the staged snapshot, or nil when nothing is staged,
// including after ClearStaging. A cleared slot must not read as an empty
// buffer awaiting work.
func (s *Store) LoadStaging(ctx context.Context, userID string) *memory.Buffer {
	return s.load(ctx, s.stagingNamespace(userID), userID)
}

// ClearStaging removes the staged snapshot once reflection for it has
// completed.
func (s *Store) ClearStaging(ctx context.Context, userID string) bool {
	if err := s.kv.Delete(ctx, s.stagingNamespace(userID), recordKey); err != nil {
		s.logger.Warn("staging clear failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *Store) load(ctx context.Context, namespace []string, userID string) *memory.Buffer {
	record, err := s.kv.Get(ctx, namespace, recordKey)
	if err != nil {
		s.logger.Warn("buffer load failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if record == nil {
		return nil
	}

	var buf memory.Buffer
	if err := json.Unmarshal(record.Value, &buf); err != nil {
		s.logger.Warn("stored buffer malformed, ignoring",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if buf.Messages == nil {
		buf.Messages = []memory.StoredMessage{}
	}
	return &buf
}

func (s *Store) save(ctx context.Context, namespace []string, userID string, buf *memory.Buffer) bool {
	value, err := json.Marshal(buf)
	if err != nil {
		s.logger.Warn("marshaling buffer failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}

	if err := s.kv.Put(ctx, namespace, recordKey, value); err != nil {
		s.logger.Warn("buffer save failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return true
}
