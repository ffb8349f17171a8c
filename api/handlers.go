package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/google/uuid"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RetrieveRequest asks for memories relevant to the user's next query.
type RetrieveRequest struct {
	Query string `json:"query"`
}

// RetrieveResponse carries the formatted memory block and the memories it
// lists, in citation order.
type RetrieveResponse struct {
	MemoryBlock string       `json:"memory_block"`
	Memories    []MemoryItem `json:"memories"`
}

// MemoryItem is one surfaced memory. Index matches the bracketed marker in
// the memory block.
type MemoryItem struct {
	Index          int     `json:"index"`
	TopicSummary   string  `json:"topic_summary"`
	RawDialogue    string  `json:"raw_dialogue,omitempty"`
	SessionID      string  `json:"session_id,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// FeedbackRequest carries the model's answer so citations can be scored.
type FeedbackRequest struct {
	Answer string `json:"answer"`
}

// MessagesRequest records one completed exchange into the user's buffer.
type MessagesRequest struct {
	HumanMessage     string `json:"human_message"`
	AssistantMessage string `json:"assistant_message"`
}

// SessionEndRequest closes the user's session and triggers reflection.
type SessionEndRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleTurnStart resets any pending selection for the user.
func (s *Server) handleTurnStart(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	s.sessions.StartTurn(c.Context(), userID)
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleRetrieve reranks and returns memories for the query.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query required"})
	}

	block, selected := s.sessions.BeforeModelCall(c.Context(), userID, req.Query)

	items := make([]MemoryItem, 0, len(selected))
	for i, m := range selected {
		items = append(items, MemoryItem{
			Index:          i,
			TopicSummary:   m.TopicSummary,
			RawDialogue:    m.RawDialogue,
			SessionID:      m.SessionID,
			RelevanceScore: m.RelevanceScore,
		})
	}

	return c.JSON(RetrieveResponse{
		MemoryBlock: block,
		Memories:    items,
	})
}

// handleFeedback applies citation feedback from the model's answer.
func (s *Server) handleFeedback(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	s.sessions.AfterModelCall(c.Context(), userID, req.Answer)
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleMessages appends one exchange to the user's message buffer.
func (s *Server) handleMessages(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	var req MessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.HumanMessage == "" && req.AssistantMessage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "at least one message required"})
	}

	s.sessions.EndTurn(c.Context(), userID, req.HumanMessage, req.AssistantMessage)
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleSessionEnd ends the session and runs reflection in the background.
// The request returns immediately; extraction and consolidation proceed
// detached from the request context.
func (s *Server) handleSessionEnd(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user id required"})
	}

	var req SessionEndRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	go func() {
		s.sessions.EndSession(context.Background(), userID, sessionID)
		s.logger.Debug("session reflection finished",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
		)
	}()

	return c.JSON(fiber.Map{
		"status":     "reflecting",
		"session_id": sessionID,
	})
}
