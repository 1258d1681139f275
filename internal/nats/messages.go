package nats

// Subjects used by the crawl queue.
const (
	JobSubmitSubject = "crawl.jobs.submit"
	JobStatusSubject = "crawl.jobs.status"
)

// JobSubmissionMessage is published by producers that enqueue jobs over NATS
// instead of the HTTP API. The durable claim protocol stays the correctness
// backstop; NATS is only a delivery channel for submissions.
type JobSubmissionMessage struct {
	Worker     string `json:"worker"`
	RequestURL string `json:"request_url,omitempty"`
}

// JobStatusMessage announces a job state change to interested consumers.
type JobStatusMessage struct {
	JobID     string `json:"job_id"`
	Worker    string `json:"worker"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}
