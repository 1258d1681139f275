package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/logger"
)

// Client publishes job submissions and status events.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to the NATS server at url.
func NewClient(url string) (*Client, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn}, nil
}

// PublishJobSubmission enqueues a job submission for a consuming worker
// process.
func (c *Client) PublishJobSubmission(msg *JobSubmissionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job submission: %w", err)
	}

	if err := c.conn.Publish(JobSubmitSubject, data); err != nil {
		return fmt.Errorf("failed to publish job submission: %w", err)
	}

	return nil
}

// NotifyJobUpdate publishes a job status event. It satisfies the worker
// pool's Notifier interface; publish failures are logged and dropped since
// the durable store remains authoritative.
func (c *Client) NotifyJobUpdate(job *interfaces.Job) {
	msg := JobStatusMessage{
		JobID:     job.ID,
		Worker:    job.Worker,
		Status:    string(job.Status),
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if err := c.conn.Publish(JobStatusSubject, data); err != nil {
		logger.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job status")
	}
}

// Close drains the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
