// Package memory defines the data shapes shared across the remem system.
//
// An [Entry] is a consolidated unit of remembered information owned by the
// memory bank. A [Retrieved] pairs an entry with the relevance score the bank
// assigned for one query; it is produced per-query and never persisted.
// [Buffer] holds conversation turns awaiting prospective reflection.
package memory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("invalid memory entry")

	// ErrInvalidVector is returned when an embedding contains NaN or Inf
	// values or has an unexpected dimension.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

// UnknownSession is the session id assigned to entries recovered from a bank
// match that carried no session metadata.
const UnknownSession = "unknown"

// Entry is a consolidated unit of remembered information.
//
// TopicSummary is the short text used for future retrieval; RawDialogue is
// the excerpt the summary was distilled from. Entries are immutable once
// consolidated, except that a merge decision rewrites TopicSummary and
// RawDialogue in place.
type Entry struct {
	ID           string    `json:"id"`
	TopicSummary string    `json:"topic_summary"`
	RawDialogue  string    `json:"raw_dialogue"`
	CreatedAt    time.Time `json:"created_at"`
	SessionID    string    `json:"session_id"`
	Embedding    []float64 `json:"embedding,omitempty"`
	TurnRefs     []int     `json:"turn_refs,omitempty"`
}

// NewEntry creates an entry with a fresh id and creation timestamp.
func NewEntry(topicSummary, rawDialogue, sessionID string, turnRefs []int) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		TopicSummary: topicSummary,
		RawDialogue:  rawDialogue,
		CreatedAt:    time.Now(),
		SessionID:    sessionID,
		TurnRefs:     turnRefs,
	}
}

// Validate checks the entry has the fields every consumer relies on.
func (e *Entry) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	if e.TopicSummary == "" {
		return fmt.Errorf("%w: missing topic summary", ErrInvalidEntry)
	}
	if err := ValidateVector(e.Embedding, 0); err != nil && len(e.Embedding) > 0 {
		return err
	}
	return nil
}

// Retrieved is an entry plus the relevance score the bank assigned for one
// query. Ephemeral; ordering follows the bank (most similar first).
type Retrieved struct {
	Entry
	RelevanceScore float64 `json:"relevance_score"`
}

// ValidateVector checks that v contains only finite values and, when dim > 0,
// has exactly dim entries.
func ValidateVector(v []float64, dim int) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(v), dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidVector, i)
		}
	}
	return nil
}
