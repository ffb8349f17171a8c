// Package weights persists per-user reranker state through the durable
// key-value store.
//
// Load returns nil for anything short of a valid stored state (missing
// record, store failure, malformed payload, wrong matrix dimensions)
// because callers must treat absence as "initialize fresh defaults", never
// as an error to propagate. Invalid records are ignored, not deleted.
package weights

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/kv"
	"github.com/papercomputeco/remem/pkg/reranker"
)

const recordKey = "reranker"

// payload is the persisted weight shape.
type payload struct {
	Weights payloadWeights  `json:"weights"`
	Config  reranker.Config `json:"config"`
	// UpdatedAt is epoch milliseconds, stamped on every save.
	UpdatedAt int64 `json:"updated_at"`
}

type payloadWeights struct {
	QueryTransform  [][]float64 `json:"query_transform"`
	MemoryTransform [][]float64 `json:"memory_transform"`
}

// Store persists reranker states keyed by user id.
type Store struct {
	kv     kv.Store
	scope  string
	dim    int
	logger *zap.Logger
}

// NewStore creates a weight store. Scope namespaces this deployment's
// records; dim is the configured embedding dimension every loaded state must
// match.
func NewStore(store kv.Store, scope string, dim int, logger *zap.Logger) *Store {
	return &Store{
		kv:     store,
		scope:  scope,
		dim:    dim,
		logger: logger,
	}
}

func (s *Store) namespace(userID string) []string {
	return []string{s.scope, userID, "weights"}
}

// Load returns the user's persisted state, or nil when there is no valid
// durable state and the caller should start from freshly-initialized
// defaults.
func (s *Store) Load(ctx context.Context, userID string) *reranker.State {
	record, err := s.kv.Get(ctx, s.namespace(userID), recordKey)
	if err != nil {
		s.logger.Warn("weight load failed, using defaults",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if record == nil {
		return nil
	}

	var p payload
	if err := json.Unmarshal(record.Value, &p); err != nil {
		s.logger.Warn("stored weights malformed, using defaults",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	state, err := stateFromPayload(&p, s.dim)
	if err != nil {
		s.logger.Warn("stored weights invalid, using defaults",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	return state
}

// Save validates and persists the state, stamping updated_at. Returns false
// without writing on invalid input or store failure; the caller keeps its
// in-memory state for the rest of the turn either way.
func (s *Store) Save(ctx context.Context, userID string, state *reranker.State) bool {
	if err := state.Validate(s.dim); err != nil {
		s.logger.Warn("refusing to save invalid weights",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}

	p := payload{
		Weights: payloadWeights{
			QueryTransform:  reranker.MatrixRows(state.Weights.QueryTransform),
			MemoryTransform: reranker.MatrixRows(state.Weights.MemoryTransform),
		},
		Config:    state.Config,
		UpdatedAt: time.Now().UnixMilli(),
	}

	value, err := json.Marshal(&p)
	if err != nil {
		s.logger.Warn("marshaling weights failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}

	if err := s.kv.Put(ctx, s.namespace(userID), recordKey, value); err != nil {
		s.logger.Warn("weight save failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}

	return true
}

func stateFromPayload(p *payload, dim int) (*reranker.State, error) {
	queryTransform, err := reranker.MatrixFromRows(p.Weights.QueryTransform)
	if err != nil {
		return nil, err
	}
	memoryTransform, err := reranker.MatrixFromRows(p.Weights.MemoryTransform)
	if err != nil {
		return nil, err
	}

	state := &reranker.State{
		Weights: reranker.Weights{
			QueryTransform:  queryTransform,
			MemoryTransform: memoryTransform,
		},
		Config: p.Config,
	}
	if err := state.Validate(dim); err != nil {
		return nil, err
	}
	return state, nil
}
