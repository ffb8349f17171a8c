// Package inmemory provides a brute-force in-process bank.Bank. Entries and
// their embeddings live in a map; Search embeds the query and ranks by
// cosine similarity. Suitable for tests and small local banks; large-scale
// retrieval belongs to a real index backend.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/embeddings"
	"github.com/papercomputeco/remem/pkg/memory"
)

// Bank implements bank.Bank using in-process data structures.
type Bank struct {
	embedder embeddings.Embedder
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*memory.Entry
}

// NewBank creates an empty in-memory bank. The embedder is used for both
// inserted entries lacking an embedding and for search queries.
func NewBank(embedder embeddings.Embedder, logger *zap.Logger) *Bank {
	return &Bank{
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string]*memory.Entry),
	}
}

// Search embeds the query and returns the k most cosine-similar entries.
func (b *Bank) Search(ctx context.Context, query string, k int) ([]bank.Match, error) {
	if k <= 0 {
		k = 5
	}

	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	matches := make([]bank.Match, 0, len(b.entries))
	for _, entry := range b.entries {
		score := cosine(queryVec, entry.Embedding)
		matches = append(matches, bank.Match{
			Content: entry.TopicSummary,
			Score:   score,
			Metadata: bank.Metadata{
				ID:          entry.ID,
				SessionID:   entry.SessionID,
				TurnRefs:    entry.TurnRefs,
				Timestamp:   entry.CreatedAt,
				RawDialogue: entry.RawDialogue,
			},
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	b.logger.Debug("searched in-memory bank",
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// Insert adds an entry, embedding its topic summary if needed.
func (b *Bank) Insert(ctx context.Context, entry *memory.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	stored := *entry
	if len(stored.Embedding) == 0 {
		vec, err := b.embedder.Embed(ctx, stored.TopicSummary)
		if err != nil {
			return fmt.Errorf("embedding entry: %w", err)
		}
		stored.Embedding = vec
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[stored.ID] = &stored
	return nil
}

// Rewrite replaces an entry's summary and dialogue and re-embeds the summary.
func (b *Bank) Rewrite(ctx context.Context, id, topicSummary, rawDialogue string) error {
	vec, err := b.embedder.Embed(ctx, topicSummary)
	if err != nil {
		return fmt.Errorf("embedding merged summary: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}

	entry.TopicSummary = topicSummary
	entry.RawDialogue = rawDialogue
	entry.Embedding = vec
	return nil
}

// Get returns a stored entry by id, for tests and inspection.
func (b *Bank) Get(id string) (*memory.Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[id]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Len returns the number of stored entries.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Close is a no-op for the in-memory bank.
func (b *Bank) Close() error {
	return nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ bank.Bank = (*Bank)(nil)
