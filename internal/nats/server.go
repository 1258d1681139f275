package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
)

// Server consumes job submissions published to the submit subject and feeds
// them into the queue engine.
type Server struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	engine *jobs.Engine
}

// NewServer connects to NATS and prepares a submission consumer.
func NewServer(url string, engine *jobs.Engine) (*Server, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Server{
		conn:   conn,
		engine: engine,
	}, nil
}

// Subscribe starts consuming submissions. Malformed or invalid messages are
// logged and dropped; there is no caller to report them to.
func (s *Server) Subscribe() error {
	sub, err := s.conn.Subscribe(JobSubmitSubject, func(msg *nats.Msg) {
		var jobMsg JobSubmissionMessage
		if err := json.Unmarshal(msg.Data, &jobMsg); err != nil {
			logger.Logger.Warn().Err(err).Msg("Dropping malformed job submission")
			return
		}

		_, err := s.engine.Submit(context.Background(), jobMsg.Worker, jobMsg.RequestURL)
		if err != nil {
			var verr *jobs.ValidationError
			if errors.As(err, &verr) {
				logger.Logger.Warn().Err(err).Str("worker", jobMsg.Worker).Msg("Rejected job submission")
				return
			}
			logger.Logger.Error().Err(err).Str("worker", jobMsg.Worker).Msg("Failed to persist job submission")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", JobSubmitSubject, err)
	}

	s.sub = sub
	return nil
}

// Close unsubscribes and closes the connection.
func (s *Server) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
