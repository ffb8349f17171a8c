// Package session orchestrates the per-turn memory lifecycle: surface
// memories before the model call, learn from citations after it, accumulate
// the conversation buffer, and hand finished sessions to reflection.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/eventstream"
	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/reflection"
	"github.com/papercomputeco/remem/pkg/reranker"
	"github.com/papercomputeco/remem/pkg/retrieval"
	"github.com/papercomputeco/remem/pkg/utils"
	"github.com/papercomputeco/remem/pkg/weights"
)

// Service coordinates retrieval, reranking, learning, and buffering for
// concurrent users. All per-user mutable state lives behind one mutex; the
// heavy work (embedding, storage) happens outside it.
type Service struct {
	retriever *retrieval.Retriever
	reranker  *reranker.Reranker
	weights   *weights.Store
	buffers   *bufferstore.Store
	worker    *reflection.Worker
	events    eventstream.Publisher
	cfg       reranker.Config
	dim       int
	logger    *zap.Logger

	mu     sync.Mutex
	turns  map[string]*turn
	states map[string]*reranker.State
}

// turn holds what BeforeModelCall produced, awaiting the citation feedback.
type turn struct {
	selection *reranker.Selection
	state     *reranker.State
}

// NewService creates a session service.
func NewService(
	retriever *retrieval.Retriever,
	rr *reranker.Reranker,
	weightStore *weights.Store,
	buffers *bufferstore.Store,
	worker *reflection.Worker,
	events eventstream.Publisher,
	cfg reranker.Config,
	dim int,
	logger *zap.Logger,
) *Service {
	return &Service{
		retriever: retriever,
		reranker:  rr,
		weights:   weightStore,
		buffers:   buffers,
		worker:    worker,
		events:    events,
		cfg:       cfg,
		dim:       dim,
		logger:    logger,
		turns:     make(map[string]*turn),
		states:    make(map[string]*reranker.State),
	}
}

// StartTurn discards any stale pending selection for the user. Feedback for
// an abandoned turn must not be applied to a later one.
func (s *Service) StartTurn(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
}

// BeforeModelCall retrieves and reranks memories for the query and returns
// the formatted block to prepend to the model prompt, along with the
// memories it lists. An empty block means no memories this turn; the caller
// proceeds without them. The selection is held until AfterModelCall or the
// next StartTurn.
func (s *Service) BeforeModelCall(ctx context.Context, userID, query string) (string, []memory.Retrieved) {
	state := s.loadState(ctx, userID)

	candidates := s.retriever.RetrieveForQuery(ctx, query, s.cfg.TopK)

	selection, err := s.reranker.Select(ctx, query, candidates, state)
	if err != nil {
		s.logger.Warn("reranking failed, surfacing no memories",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return "", nil
	}
	if len(selection.Selected) == 0 {
		return "", nil
	}

	s.mu.Lock()
	s.turns[userID] = &turn{selection: selection, state: state}
	s.mu.Unlock()

	return FormatMemoryBlock(selection.Selected), selection.Selected
}

// AfterModelCall applies citation feedback from the model's answer to the
// user's reranker state and persists it. Without a pending selection this is
// a no-op. A failed persist is logged and the updated state stays cached for
// the rest of the session.
func (s *Service) AfterModelCall(ctx context.Context, userID, answer string) {
	s.mu.Lock()
	t := s.turns[userID]
	delete(s.turns, userID)
	s.mu.Unlock()

	if t == nil {
		return
	}

	updated := reranker.Update(t.selection.Trace, answer, t.state, s.logger)

	s.mu.Lock()
	s.states[userID] = updated
	s.mu.Unlock()

	if !s.weights.Save(ctx, userID, updated) {
		s.logger.Warn("weight persist failed, keeping in-memory state",
			zap.String("user_id", userID),
		)
		return
	}

	citations := reranker.ParseCitations(answer, len(t.selection.Selected))
	event := eventstream.NewMemoryEvent(eventstream.EventTypeWeightsUpdated, userID)
	event.Weights = &eventstream.WeightsMeta{
		Dimensions:   updated.Dim(),
		CitedCount:   len(citations),
		ShownCount:   len(t.selection.Selected),
		LearningRate: updated.Config.LearningRate,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing weights event failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// EndTurn appends the turn's exchange to the user's message buffer and
// persists it.
func (s *Service) EndTurn(ctx context.Context, userID, humanMessage, assistantMessage string) {
	buf := s.buffers.Load(ctx, userID)
	buf.Append(memory.RoleHuman, humanMessage)
	buf.Append(memory.RoleAssistant, assistantMessage)
	if !s.buffers.Save(ctx, userID, buf) {
		s.logger.Warn("buffer persist failed",
			zap.String("user_id", userID),
		)
	}
}

// EndSession drops the user's cached turn state and runs reflection over the
// accumulated buffer. Blocks until reflection completes; callers wanting
// fire-and-forget run it in a goroutine.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) {
	s.mu.Lock()
	delete(s.turns, userID)
	delete(s.states, userID)
	s.mu.Unlock()

	s.worker.Reflect(ctx, userID, sessionID)
}

// loadState returns the user's reranker state: the session cache if present,
// otherwise the persisted state, otherwise fresh identity weights.
func (s *Service) loadState(ctx context.Context, userID string) *reranker.State {
	s.mu.Lock()
	cached := s.states[userID]
	s.mu.Unlock()
	if cached != nil {
		return cached
	}

	if state := s.weights.Load(ctx, userID); state != nil {
		return state
	}
	return reranker.NewState(s.dim, s.cfg)
}

// maxDialogueChars bounds the raw dialogue excerpt per memory so one long
// entry cannot crowd the prompt.
const maxDialogueChars = 280

// FormatMemoryBlock renders selected memories as a numbered block. The
// bracketed indexes are the ones the model cites back.
func FormatMemoryBlock(selected []memory.Retrieved) string {
	if len(selected) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant memories from previous conversations.\n")
	b.WriteString("Cite a memory as [N] when your answer draws on it.\n\n")
	for i, m := range selected {
		fmt.Fprintf(&b, "[%d] %s\n", i, m.TopicSummary)
		if m.RawDialogue != "" {
			fmt.Fprintf(&b, "    %s\n", utils.Truncate(m.RawDialogue, maxDialogueChars))
		}
	}
	return b.String()
}
