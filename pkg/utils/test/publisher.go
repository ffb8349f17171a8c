package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/remem/pkg/eventstream"
)

// MockPublisher is a test eventstream publisher that records published
// events.
type MockPublisher struct {
	mu sync.Mutex

	// Events accumulates all published events in order.
	Events []*eventstream.MemoryEvent

	// FailPublish causes Publish to return an error.
	FailPublish bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if m.FailPublish {
		return fmt.Errorf("mock publish failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// EventTypes returns the types of all published events, in order.
func (m *MockPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.EventType)
	}
	return types
}

func (m *MockPublisher) Close() error {
	return nil
}
