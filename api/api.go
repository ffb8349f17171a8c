package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/session"
)

// Server is the API server exposing the per-turn memory lifecycle.
type Server struct {
	config   Config
	sessions *session.Service
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server.
// The session service is injected to allow sharing with other components
// (e.g., the chat CLI when run in-process).
func NewServer(config Config, sessions *session.Service, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		sessions: sessions,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/users/:id/turn/start", s.handleTurnStart)
	app.Post("/users/:id/retrieve", s.handleRetrieve)
	app.Post("/users/:id/feedback", s.handleFeedback)
	app.Post("/users/:id/messages", s.handleMessages)
	app.Post("/users/:id/session/end", s.handleSessionEnd)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
