package api

import (
	"database/sql"
	"net/http"
	"time"
)

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// ReadinessResponse extends the health body with dependency state.
type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Database  string    `json:"database"`
}

const serviceName = "crawl-queue"

var dbConn *sql.DB

// SetDBConnection registers the database handle the readiness probe pings.
func SetDBConnection(conn *sql.DB) {
	dbConn = conn
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
	})
}

func HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dbStatus := "unknown"
	if dbConn != nil {
		dbStatus = "connected"
		if err := dbConn.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
				Status:    "not ready",
				Timestamp: time.Now(),
				Service:   serviceName,
				Database:  "disconnected",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Service:   serviceName,
		Database:  dbStatus,
	})
}

func HandleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Service:   serviceName,
	})
}
