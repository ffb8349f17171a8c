// Package reflection turns a finished session's message buffer into durable
// memory entries. Extraction prompts an LLM over the staged transcript and
// hands each extracted memory to consolidation.
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/llm"
	"github.com/papercomputeco/remem/pkg/memory"
)

// extractedMemory is one memory the model pulled out of the transcript.
type extractedMemory struct {
	TopicSummary string `json:"topic_summary"`
	RawDialogue  string `json:"raw_dialogue"`
	TurnRefs     []int  `json:"turn_refs"`
}

type extractionResponse struct {
	Memories []extractedMemory `json:"memories"`
}

// Extractor derives memory entries from a message buffer via an LLM.
type Extractor struct {
	llmCall llm.CallFunc
	logger  *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(llmCall llm.CallFunc, logger *zap.Logger) *Extractor {
	return &Extractor{
		llmCall: llmCall,
		logger:  logger,
	}
}

// Extract returns the memories found in the buffer. An empty buffer, a
// failed LLM call, or an unparseable response all yield an empty slice.
// Entries with no topic summary are dropped.
func (e *Extractor) Extract(ctx context.Context, sessionID string, buf *memory.Buffer) []*memory.Entry {
	if buf == nil || buf.Empty() {
		return nil
	}

	prompt := buildExtractionPrompt(buf)
	response, err := e.llmCall(ctx, prompt)
	if err != nil {
		e.logger.Warn("memory extraction llm call failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil
	}

	parsed, err := parseExtractionResponse(response)
	if err != nil {
		e.logger.Warn("unparseable extraction response",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil
	}

	entries := make([]*memory.Entry, 0, len(parsed.Memories))
	for _, m := range parsed.Memories {
		if strings.TrimSpace(m.TopicSummary) == "" {
			continue
		}
		entries = append(entries, memory.NewEntry(m.TopicSummary, m.RawDialogue, sessionID, m.TurnRefs))
	}

	e.logger.Debug("extracted memories",
		zap.String("session_id", sessionID),
		zap.Int("count", len(entries)),
	)
	return entries
}

func buildExtractionPrompt(buf *memory.Buffer) string {
	var b strings.Builder
	b.WriteString("Extract long-term memories from this conversation between a user and an assistant.\n")
	b.WriteString("A memory is a fact, preference, or ongoing concern worth recalling in future sessions.\n")
	b.WriteString("Return ONLY valid JSON in this shape:\n\n")
	b.WriteString(`{"memories": [{"topic_summary": "one-line topic", "raw_dialogue": "the supporting exchange", "turn_refs": [0, 1]}]}` + "\n\n")
	b.WriteString("turn_refs are zero-based indexes into the transcript below.\n")
	b.WriteString("Return an empty memories array if nothing is worth keeping.\n\n")
	b.WriteString("Transcript:\n")
	for i, msg := range buf.Messages {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, msg.Role, msg.Content)
	}
	return b.String()
}

func parseExtractionResponse(response string) (*extractionResponse, error) {
	// Extract JSON from the response (may be wrapped in markdown code blocks)
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal extraction JSON: %w", err)
	}

	return &parsed, nil
}
