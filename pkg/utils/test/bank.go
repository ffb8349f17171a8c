package testutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/memory"
)

// MockBank is a test bank that records calls and returns configurable
// results.
type MockBank struct {
	// SearchResults is returned by Search for any query.
	SearchResults []bank.Match

	// Inserted accumulates all entries passed to Insert.
	Inserted []*memory.Entry

	// Rewrites accumulates all Rewrite calls.
	Rewrites []RewriteCall

	// FailSearch causes Search to return an error.
	FailSearch bool

	// FailInsert causes Insert to return an error.
	FailInsert bool

	// FailRewrite causes Rewrite to return an error.
	FailRewrite bool
}

// RewriteCall records one Rewrite invocation.
type RewriteCall struct {
	ID           string
	TopicSummary string
	RawDialogue  string
}

// NewMockBank creates a new mock bank.
func NewMockBank() *MockBank {
	return &MockBank{}
}

func (m *MockBank) Search(_ context.Context, _ string, k int) ([]bank.Match, error) {
	if m.FailSearch {
		return nil, fmt.Errorf("mock search failure: %w", bank.ErrConnection)
	}
	if len(m.SearchResults) > k {
		return m.SearchResults[:k], nil
	}
	return m.SearchResults, nil
}

func (m *MockBank) Insert(_ context.Context, entry *memory.Entry) error {
	if m.FailInsert {
		return fmt.Errorf("mock insert failure: %w", bank.ErrConnection)
	}
	m.Inserted = append(m.Inserted, entry)
	return nil
}

func (m *MockBank) Rewrite(_ context.Context, id, topicSummary, rawDialogue string) error {
	if m.FailRewrite {
		return fmt.Errorf("mock rewrite failure: %w", bank.ErrConnection)
	}
	m.Rewrites = append(m.Rewrites, RewriteCall{
		ID:           id,
		TopicSummary: topicSummary,
		RawDialogue:  rawDialogue,
	})
	return nil
}

func (m *MockBank) Close() error {
	return nil
}
