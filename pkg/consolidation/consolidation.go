// Package consolidation decides how a freshly extracted memory enters the
// bank: inserted as a new entry, or merged into an existing one.
//
// The decision is delegated to an LLM shown the new memory alongside its
// nearest neighbors. Every failure mode along the way degrades to a plain
// insert, so a broken model or malformed response never loses a memory.
package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/eventstream"
	"github.com/papercomputeco/remem/pkg/llm"
	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/retrieval"
)

const (
	// ActionAdd inserts the new memory as its own entry.
	ActionAdd = "add"

	// ActionMerge folds the new memory into an existing entry.
	ActionMerge = "merge"

	// neighborCount is how many similar memories the decision model sees.
	neighborCount = 5
)

// decision is the parsed LLM response. The model may return several actions;
// only the first is honored.
type decision struct {
	Actions []action `json:"actions"`
}

type action struct {
	Action       string `json:"action"`
	Index        int    `json:"index"`
	TopicSummary string `json:"topic_summary"`
	RawDialogue  string `json:"raw_dialogue"`
}

// Result reports how a memory was consolidated.
type Result struct {
	Action     string
	EntryID    string
	MergedInto string
}

// Consolidator runs the add-versus-merge pipeline for new memories.
type Consolidator struct {
	bank      bank.Bank
	retriever *retrieval.Retriever
	llmCall   llm.CallFunc
	events    eventstream.Publisher
	logger    *zap.Logger
}

// NewConsolidator creates a consolidator. The publisher may be a nop
// implementation when eventing is disabled.
func NewConsolidator(b bank.Bank, retriever *retrieval.Retriever, llmCall llm.CallFunc, events eventstream.Publisher, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		bank:      b,
		retriever: retriever,
		llmCall:   llmCall,
		events:    events,
		logger:    logger,
	}
}

// ProcessNewMemory consolidates one extracted memory into the bank and
// returns what happened. The entry is always stored one way or another;
// the returned error covers only bank write failures.
func (c *Consolidator) ProcessNewMemory(ctx context.Context, userID string, entry *memory.Entry) (*Result, error) {
	neighbors := c.retriever.RetrieveSimilar(ctx, entry, neighborCount)
	if len(neighbors) == 0 {
		return c.add(ctx, userID, entry)
	}

	act := c.decide(ctx, entry, neighbors)
	if act == nil || act.Action != ActionMerge {
		return c.add(ctx, userID, entry)
	}
	if act.Index < 0 || act.Index >= len(neighbors) {
		c.logger.Warn("merge target out of range, adding instead",
			zap.Int("index", act.Index),
			zap.Int("neighbors", len(neighbors)),
		)
		return c.add(ctx, userID, entry)
	}

	return c.merge(ctx, userID, entry, &neighbors[act.Index].Entry, act)
}

func (c *Consolidator) add(ctx context.Context, userID string, entry *memory.Entry) (*Result, error) {
	if err := c.bank.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}

	event := eventstream.NewMemoryEvent(eventstream.EventTypeMemoryAdded, userID)
	event.Memory = &eventstream.MemoryMeta{
		EntryID:      entry.ID,
		SessionID:    entry.SessionID,
		TopicSummary: entry.TopicSummary,
	}
	c.publish(ctx, event)

	return &Result{Action: ActionAdd, EntryID: entry.ID}, nil
}

func (c *Consolidator) merge(ctx context.Context, userID string, entry *memory.Entry, target *memory.Entry, act *action) (*Result, error) {
	summary := act.TopicSummary
	if summary == "" {
		summary = target.TopicSummary
	}
	dialogue := act.RawDialogue
	if dialogue == "" {
		dialogue = strings.TrimSpace(target.RawDialogue + "\n" + entry.RawDialogue)
	}

	if err := c.bank.Rewrite(ctx, target.ID, summary, dialogue); err != nil {
		// Fall back to a plain insert so the memory is not lost.
		c.logger.Warn("merge rewrite failed, adding instead",
			zap.String("target_id", target.ID),
			zap.Error(err),
		)
		return c.add(ctx, userID, entry)
	}

	event := eventstream.NewMemoryEvent(eventstream.EventTypeMemoryMerged, userID)
	event.Memory = &eventstream.MemoryMeta{
		EntryID:      entry.ID,
		SessionID:    entry.SessionID,
		TopicSummary: summary,
		MergedInto:   target.ID,
	}
	c.publish(ctx, event)

	return &Result{Action: ActionMerge, EntryID: entry.ID, MergedInto: target.ID}, nil
}

// decide asks the LLM whether to add or merge. A nil return means add.
func (c *Consolidator) decide(ctx context.Context, entry *memory.Entry, neighbors []memory.Retrieved) *action {
	prompt := buildDecisionPrompt(entry, neighbors)
	response, err := c.llmCall(ctx, prompt)
	if err != nil {
		c.logger.Warn("consolidation llm call failed, adding instead", zap.Error(err))
		return nil
	}

	dec, err := parseDecisionResponse(response)
	if err != nil {
		c.logger.Warn("unparseable consolidation response, adding instead", zap.Error(err))
		return nil
	}
	if len(dec.Actions) == 0 {
		return nil
	}
	if len(dec.Actions) > 1 {
		c.logger.Warn("multiple consolidation actions returned, using first",
			zap.Int("count", len(dec.Actions)),
		)
	}

	first := dec.Actions[0]
	first.Action = strings.ToLower(strings.TrimSpace(first.Action))
	return &first
}

func (c *Consolidator) publish(ctx context.Context, event *eventstream.MemoryEvent) {
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("publishing memory event failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func buildDecisionPrompt(entry *memory.Entry, neighbors []memory.Retrieved) string {
	var b strings.Builder
	b.WriteString("You manage a long-term memory bank for a conversational assistant.\n")
	b.WriteString("A new memory was extracted. Decide whether it should be stored as a new entry\n")
	b.WriteString("or merged with one of the existing similar memories below.\n\n")
	b.WriteString("New memory:\n")
	fmt.Fprintf(&b, "  topic: %s\n", entry.TopicSummary)
	fmt.Fprintf(&b, "  dialogue: %s\n\n", entry.RawDialogue)
	b.WriteString("Existing similar memories:\n")
	for i, n := range neighbors {
		fmt.Fprintf(&b, "[%d] topic: %s\n    dialogue: %s\n", i, n.TopicSummary, n.RawDialogue)
	}
	b.WriteString("\nReturn ONLY valid JSON in this shape:\n")
	b.WriteString(`{"actions": [{"action": "add"}]}` + "\n")
	b.WriteString("or, to merge with existing memory N:\n")
	b.WriteString(`{"actions": [{"action": "merge", "index": N, "topic_summary": "combined topic", "raw_dialogue": "combined dialogue"}]}` + "\n")
	b.WriteString("Merge only when the new memory covers the same topic as an existing one.\n")
	return b.String()
}

func parseDecisionResponse(response string) (*decision, error) {
	// Extract JSON from the response (may be wrapped in markdown code blocks)
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var dec decision
	if err := json.Unmarshal([]byte(jsonStr), &dec); err != nil {
		return nil, fmt.Errorf("unmarshal decision JSON: %w", err)
	}

	return &dec, nil
}
