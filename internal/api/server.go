package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	"github.com/mtr002/Crawl-Queue/internal/websocket"
)

// Server hosts the HTTP API.
type Server struct {
	engine *jobs.Engine
	hub    *websocket.Hub
	port   string
	srv    *http.Server
}

// NewServer creates an API server. hub may be nil.
func NewServer(engine *jobs.Engine, hub *websocket.Hub, port string) *Server {
	return &Server{
		engine: engine,
		hub:    hub,
		port:   port,
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	AddRoutes(mux, s.engine, s.hub)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Logger.Info().Str("addr", s.srv.Addr).Msg("Starting API server")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
