// Package bank defines the memory bank boundary: the external corpus of
// consolidated memory entries, searchable by similarity.
//
// The core consumes the bank as a black box. Search takes a text query and
// returns ranked matches with their stored metadata; Insert and Rewrite are
// the two mutations the consolidation step applies. Backends embed the query
// themselves; the caller never passes raw vectors across this boundary.
package bank

import (
	"context"
	"errors"
	"time"

	"github.com/papercomputeco/remem/pkg/memory"
)

var (
	// ErrNotFound is returned when an entry is not found in the bank.
	ErrNotFound = errors.New("entry not found")

	// ErrConnection is returned when the bank backend is unreachable.
	ErrConnection = errors.New("bank connection failed")
)

// Metadata carries the stored fields of a matched entry.
type Metadata struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	TurnRefs    []int     `json:"turn_refs,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	RawDialogue string    `json:"raw_dialogue,omitempty"`
}

// Match is a single similarity search result. Content is the entry's topic
// summary; Score is backend-specific with higher meaning more similar.
type Match struct {
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Bank stores consolidated memory entries and serves similarity queries.
type Bank interface {
	// Search returns the k entries most similar to the query text, most
	// similar first.
	Search(ctx context.Context, query string, k int) ([]Match, error)

	// Insert adds a new entry to the bank. The entry's embedding may be
	// empty, in which case the backend embeds the topic summary itself.
	Insert(ctx context.Context, entry *memory.Entry) error

	// Rewrite replaces an existing entry's topic summary and raw dialogue,
	// re-embedding the summary. Applied by merge decisions; returns
	// ErrNotFound if the id is unknown.
	Rewrite(ctx context.Context, id, topicSummary, rawDialogue string) error

	// Close releases backend resources.
	Close() error
}
