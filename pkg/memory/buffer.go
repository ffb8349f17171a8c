package memory

import "time"

// Message roles stored in a buffer.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

// StoredMessage is a single conversation message held in a buffer.
type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is an ordered sequence of stored messages for one user awaiting
// prospective reflection.
//
// Two variants exist per user: a main buffer actively accumulating turns and
// a staging buffer frozen for asynchronous reflection. The buffer store owns
// that split; the Buffer itself is just the payload. Staging is populated by
// copying the main buffer and cleared only after consolidation for that
// snapshot completes.
type Buffer struct {
	Messages             []StoredMessage `json:"messages"`
	HumanMessageCount    int             `json:"human_message_count"`
	LastMessageTimestamp time.Time       `json:"last_message_timestamp"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewBuffer returns an empty buffer stamped with the current time.
func NewBuffer() *Buffer {
	return &Buffer{
		Messages:  []StoredMessage{},
		CreatedAt: time.Now(),
	}
}

// Append adds a message and maintains the counters.
func (b *Buffer) Append(role, content string) {
	now := time.Now()
	b.Messages = append(b.Messages, StoredMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	if role == RoleHuman {
		b.HumanMessageCount++
	}
	b.LastMessageTimestamp = now
}

// Empty reports whether the buffer holds no messages.
func (b *Buffer) Empty() bool {
	return len(b.Messages) == 0
}

// Clone returns a deep copy, used when staging a snapshot so later appends
// to the main buffer cannot leak into an in-flight reflection pass.
func (b *Buffer) Clone() *Buffer {
	messages := make([]StoredMessage, len(b.Messages))
	copy(messages, b.Messages)
	return &Buffer{
		Messages:             messages,
		HumanMessageCount:    b.HumanMessageCount,
		LastMessageTimestamp: b.LastMessageTimestamp,
		CreatedAt:            b.CreatedAt,
	}
}
