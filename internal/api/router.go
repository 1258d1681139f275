package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	"github.com/mtr002/Crawl-Queue/internal/websocket"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// AddRoutes wires all HTTP endpoints onto the mux. hub may be nil when live
// updates are disabled.
func AddRoutes(mux *http.ServeMux, engine *jobs.Engine, hub *websocket.Hub) {
	mux.HandleFunc("/jobs", correlationMiddleware(handleJobs(engine, hub)))
	mux.HandleFunc("/jobs/", correlationMiddleware(handleJobByID(engine)))
	if hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.HandleWebSocket(hub, w, r)
		})
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HandleHealth)
	mux.HandleFunc("/health/ready", HandleReadiness)
	mux.HandleFunc("/health/live", HandleLiveness)
}

func correlationMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next(w, r.WithContext(ctx))
	}
}

func handleJobs(engine *jobs.Engine, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleListJobs(w, r, engine)
		case http.MethodPost:
			handleSubmitJob(w, r, engine, hub)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleJobByID(engine *jobs.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
		jobID, sub, _ := strings.Cut(rest, "/")
		if jobID == "" {
			http.Error(w, "Job ID is required", http.StatusBadRequest)
			return
		}

		switch sub {
		case "":
			handleGetJob(w, r, engine, jobID)
		case "result":
			handleGetResult(w, r, engine, jobID)
		default:
			http.NotFound(w, r)
		}
	}
}

type submitRequest struct {
	Worker     string `json:"worker"`
	RequestURL string `json:"request_url"`
}

type jobResponse struct {
	ID          string `json:"id"`
	Worker      string `json:"worker"`
	RequestURL  string `json:"request_url,omitempty"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toJobResponse(job *interfaces.Job) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Worker:      job.Worker,
		RequestURL:  job.RequestURL,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
}

func handleSubmitJob(w http.ResponseWriter, r *http.Request, engine *jobs.Engine, hub *websocket.Hub) {
	log := logger.WithCorrelationID(getCorrelationID(r.Context()))

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid JSON request")
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	job, err := engine.Submit(r.Context(), req.Worker, req.RequestURL)
	if err != nil {
		var verr *jobs.ValidationError
		if errors.As(err, &verr) {
			log.Warn().Err(err).Msg("Rejected job submission")
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to submit job")
		http.Error(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	log.Info().Str("job_id", job.ID).Str("worker", job.Worker).Msg("Job submitted")
	if hub != nil {
		hub.NotifyJobUpdate(job)
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func handleGetJob(w http.ResponseWriter, r *http.Request, engine *jobs.Engine, jobID string) {
	job, err := engine.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		logger.Logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		http.Error(w, "Failed to retrieve job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func handleGetResult(w http.ResponseWriter, r *http.Request, engine *jobs.Engine, jobID string) {
	result, err := engine.GetResult(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			http.Error(w, "No result for job", http.StatusNotFound)
			return
		}
		logger.Logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get result")
		http.Error(w, "Failed to retrieve result", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func handleListJobs(w http.ResponseWriter, r *http.Request, engine *jobs.Engine) {
	jobList, err := engine.ListJobs(r.Context())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to list jobs")
		http.Error(w, "Failed to retrieve jobs", http.StatusInternalServerError)
		return
	}

	responses := make([]jobResponse, 0, len(jobList))
	for _, job := range jobList {
		responses = append(responses, toJobResponse(job))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  responses,
		"count": len(responses),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
