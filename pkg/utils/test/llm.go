package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/remem/pkg/llm"
)

// ScriptedLLM returns a CallFunc that replays the given responses in order,
// recording each prompt it receives. Once responses run out it returns an
// error.
func ScriptedLLM(responses ...string) (llm.CallFunc, *PromptLog) {
	log := &PromptLog{}
	i := 0
	return func(_ context.Context, prompt string) (string, error) {
		log.append(prompt)
		if i >= len(responses) {
			return "", fmt.Errorf("scripted llm exhausted after %d calls", len(responses))
		}
		resp := responses[i]
		i++
		return resp, nil
	}, log
}

// FailingLLM returns a CallFunc that always errors.
func FailingLLM() llm.CallFunc {
	return func(_ context.Context, _ string) (string, error) {
		return "", fmt.Errorf("llm unavailable")
	}
}

// PromptLog records the prompts sent to a scripted LLM.
type PromptLog struct {
	mu      sync.Mutex
	prompts []string
}

func (p *PromptLog) append(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
}

// Prompts returns a copy of the recorded prompts.
func (p *PromptLog) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}
