package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryAdded is emitted when a new memory entry is inserted.
	EventTypeMemoryAdded = "remem.memory.added"

	// EventTypeMemoryMerged is emitted when a new memory is merged into an
	// existing entry.
	EventTypeMemoryMerged = "remem.memory.merged"

	// EventTypeWeightsUpdated is emitted after a reranker weight update is
	// persisted.
	EventTypeWeightsUpdated = "remem.weights.updated"
)

// MemoryEvent is a transport-neutral event payload describing a change to a
// user's memory state.
type MemoryEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	UserID        string       `json:"user_id"`
	Memory        *MemoryMeta  `json:"memory,omitempty"`
	Weights       *WeightsMeta `json:"weights,omitempty"`
}

// MemoryMeta identifies the memory entry an event refers to.
type MemoryMeta struct {
	EntryID      string `json:"entry_id"`
	SessionID    string `json:"session_id,omitempty"`
	TopicSummary string `json:"topic_summary,omitempty"`
	MergedInto   string `json:"merged_into,omitempty"`
}

// WeightsMeta captures reranker update metadata for the event.
type WeightsMeta struct {
	Dimensions   int     `json:"dimensions"`
	CitedCount   int     `json:"cited_count"`
	ShownCount   int     `json:"shown_count"`
	LearningRate float64 `json:"learning_rate"`
}

// NewMemoryEvent builds an event envelope with a fresh id and timestamp.
func NewMemoryEvent(eventType, userID string) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		UserID:        userID,
	}
}
