package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/testutil"
)

func newTestRouter(t *testing.T) (*http.ServeMux, *jobs.Engine, *testutil.MemStore) {
	t.Helper()

	store := testutil.NewMemStore()
	engine := jobs.NewEngine(store, []string{"web", "youtube", "bluesky"}, 3, 10*time.Minute)

	mux := http.NewServeMux()
	AddRoutes(mux, engine, nil)
	return mux, engine, store
}

func doRequest(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJob(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doRequest(mux, http.MethodPost, "/jobs", `{"worker":"web","request_url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "web", resp.Worker)
	assert.Equal(t, "https://example.com", resp.RequestURL)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 0, resp.Attempts)
	assert.Equal(t, 3, resp.MaxAttempts)
}

func TestSubmitJob_UnknownWorkerRejected(t *testing.T) {
	mux, engine, _ := newTestRouter(t)

	rec := doRequest(mux, http.MethodPost, "/jobs", `{"worker":"ftp","request_url":"ftp://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	jobList, err := engine.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobList, "rejected submissions must not create rows")
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doRequest(mux, http.MethodPost, "/jobs", `{"worker":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	mux, engine, _ := newTestRouter(t)

	job, err := engine.Submit(context.Background(), "youtube", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodGet, "/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.ID)
	assert.Equal(t, "youtube", resp.Worker)
}

func TestGetJob_NotFound(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doRequest(mux, http.MethodGet, "/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResult(t *testing.T) {
	mux, engine, _ := newTestRouter(t)
	ctx := context.Background()

	job, err := engine.Submit(ctx, "web", "https://example.com")
	require.NoError(t, err)

	claimed, err := engine.Claim(ctx, "web")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, engine.Complete(ctx, claimed, &interfaces.Result{
		OriginalURL: claimed.RequestURL,
		FinalURL:    "https://example.com/landed",
		Payload:     json.RawMessage(`{"markdown":"# hi"}`),
		Success:     true,
	}))

	rec := doRequest(mux, http.MethodGet, "/jobs/"+job.ID+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result interfaces.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, job.ID, result.JobID)
	assert.Equal(t, "https://example.com/landed", result.FinalURL)
	assert.True(t, result.Success)
}

func TestGetResult_NoneYet(t *testing.T) {
	mux, engine, _ := newTestRouter(t)

	job, err := engine.Submit(context.Background(), "web", "https://example.com")
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodGet, "/jobs/"+job.ID+"/result", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	mux, engine, _ := newTestRouter(t)
	ctx := context.Background()

	_, err := engine.Submit(ctx, "web", "https://example.com/a")
	require.NoError(t, err)
	_, err = engine.Submit(ctx, "bluesky", "alice.bsky.social")
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []jobResponse `json:"jobs"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Jobs, 2)
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	rec := doRequest(mux, http.MethodDelete, "/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/jobs/abc", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	mux, _, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/health/live"} {
		rec := doRequest(mux, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
