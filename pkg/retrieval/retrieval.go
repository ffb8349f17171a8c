// Package retrieval turns a memory entry into a similarity query against the
// bank and translates the ranked matches back into retrieved memories.
//
// Retrieval is deliberately infallible: the conversation must never fail
// because the bank is unreachable. Any bank error degrades to an empty
// candidate list, which downstream callers treat as "no similar memories"
// (the consolidator then falls back to an unconditional add).
package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/memory"
)

// DefaultTopK is the candidate count used when the caller passes k <= 0.
const DefaultTopK = 5

// Retriever wraps the bank's search with the core's fallback contract.
type Retriever struct {
	bank   bank.Bank
	logger *zap.Logger
}

// NewRetriever creates a retriever over the given bank.
func NewRetriever(b bank.Bank, logger *zap.Logger) *Retriever {
	return &Retriever{
		bank:   b,
		logger: logger,
	}
}

// RetrieveSimilar returns up to k memories similar to mem, most similar
// first. The query text is the entry's topic summary, not its raw dialogue.
// Never returns an error: bank failures log a warning and yield nil.
func (r *Retriever) RetrieveSimilar(ctx context.Context, mem *memory.Entry, k int) []memory.Retrieved {
	if k <= 0 {
		k = DefaultTopK
	}
	if mem == nil || mem.TopicSummary == "" {
		return nil
	}

	matches, err := r.bank.Search(ctx, mem.TopicSummary, k)
	if err != nil {
		r.logger.Warn("similarity search failed, returning no candidates",
			zap.String("entry_id", mem.ID),
			zap.Error(err),
		)
		return nil
	}

	retrieved := make([]memory.Retrieved, 0, len(matches))
	for _, match := range matches {
		retrieved = append(retrieved, FromMatch(match))
	}
	return retrieved
}

// RetrieveForQuery is the per-turn variant: it searches with raw query text
// (the incoming user message) under the same never-fail contract.
func (r *Retriever) RetrieveForQuery(ctx context.Context, query string, k int) []memory.Retrieved {
	if k <= 0 {
		k = DefaultTopK
	}
	if query == "" {
		return nil
	}

	matches, err := r.bank.Search(ctx, query, k)
	if err != nil {
		r.logger.Warn("similarity search failed, returning no candidates",
			zap.Error(err),
		)
		return nil
	}

	retrieved := make([]memory.Retrieved, 0, len(matches))
	for _, match := range matches {
		retrieved = append(retrieved, FromMatch(match))
	}
	return retrieved
}

// FromMatch translates a bank match into a retrieved memory, filling
// conservative defaults for metadata the backend did not store: the
// timestamp becomes now, turn references stay empty, and the session id
// falls back to memory.UnknownSession.
func FromMatch(match bank.Match) memory.Retrieved {
	entry := memory.Entry{
		ID:           match.Metadata.ID,
		TopicSummary: match.Content,
		RawDialogue:  match.Metadata.RawDialogue,
		CreatedAt:    match.Metadata.Timestamp,
		SessionID:    match.Metadata.SessionID,
		TurnRefs:     match.Metadata.TurnRefs,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.SessionID == "" {
		entry.SessionID = memory.UnknownSession
	}

	return memory.Retrieved{
		Entry:          entry,
		RelevanceScore: match.Score,
	}
}
