package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/Crawl-Queue/internal/cache"
	"github.com/mtr002/Crawl-Queue/internal/config"
	"github.com/mtr002/Crawl-Queue/internal/fetch"
	"github.com/mtr002/Crawl-Queue/internal/interfaces"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/testutil"
)

// stubFetcher is a scriptable fetcher counting its invocations.
type stubFetcher struct {
	kind   string
	calls  atomic.Int32
	delay  time.Duration
	result *fetch.Fetched
	err    error
	panics bool
}

func (f *stubFetcher) Kind() string { return f.kind }

func (f *stubFetcher) Fetch(ctx context.Context, _ string) (*fetch.Fetched, error) {
	f.calls.Add(1)
	if f.panics {
		panic("fetcher exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func webResult(finalURL string) *fetch.Fetched {
	return &fetch.Fetched{
		FinalURL: finalURL,
		Payload:  json.RawMessage(`{"markdown":"# hello"}`),
		Success:  true,
	}
}

type poolFixture struct {
	store   *testutil.MemStore
	engine  *jobs.Engine
	fetcher *stubFetcher
	pool    *Pool
}

func newPoolFixture(t *testing.T, fetcher *stubFetcher, cacheCfg config.CacheConfig) *poolFixture {
	t.Helper()

	store := testutil.NewMemStore()
	engine := jobs.NewEngine(store, []string{fetcher.kind}, 3, time.Hour)
	registry := fetch.NewRegistry(fetcher)
	resultCache := cache.New(store, nil, cacheCfg)

	pool := NewPool(engine, registry, resultCache, Options{
		WorkerCount:       1,
		PollInterval:      5 * time.Millisecond,
		FetchTimeout:      100 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
	})

	return &poolFixture{store: store, engine: engine, fetcher: fetcher, pool: pool}
}

// claimAndProcess drives one full claim-dispatch-record cycle synchronously.
func (f *poolFixture) claimAndProcess(t *testing.T) *interfaces.Job {
	t.Helper()

	job, err := f.engine.Claim(context.Background(), f.fetcher.kind)
	require.NoError(t, err)
	require.NotNil(t, job)
	f.pool.processJob(0, job)

	current, err := f.engine.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return current
}

func TestPool_SuccessfulFetchRecordsResult(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", result: webResult("https://example.com/")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusCompleted, job.Status)

	result, err := f.engine.GetResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", result.OriginalURL)
	assert.Equal(t, "https://example.com/", result.FinalURL)
	assert.JSONEq(t, `{"markdown":"# hello"}`, string(result.Payload))
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestPool_CacheHitSkipsFetcher(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", result: webResult("https://example.com/")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{WebTTL: time.Hour})
	ctx := context.Background()

	// First job executes the fetcher; the request URL redirects elsewhere.
	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)
	first := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusCompleted, first.Status)
	require.Equal(t, int32(1), fetcher.calls.Load())

	// Second submission for the same original URL completes from cache.
	_, err = f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)
	second := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusCompleted, second.Status)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "fetcher not invoked on cache hit")

	result, err := f.engine.GetResult(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", result.FinalURL)
	assert.JSONEq(t, `{"markdown":"# hello"}`, string(result.Payload))
}

func TestPool_CacheHitOnFinalURL(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", result: webResult("https://example.com/")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{WebTTL: time.Hour})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)
	f.claimAndProcess(t)
	require.Equal(t, int32(1), fetcher.calls.Load())

	// Submitting the resolved form of the same resource also hits the cache.
	_, err = f.engine.Submit(ctx, "web", "https://example.com/")
	require.NoError(t, err)
	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusCompleted, job.Status)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestPool_RecoverableErrorRequeues(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", err: fetch.Recoverablef("connection reset")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "connection reset", job.LastError)
}

func TestPool_TerminalErrorFailsImmediately(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", err: fetch.Terminalf("resource gone")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "resource gone", job.LastError)
}

func TestPool_RetryBoundThroughLoop(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", err: fetch.Recoverablef("flaky upstream")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	// Three requeues, then a final execution that lands in failed.
	var last *interfaces.Job
	for i := 0; i < 4; i++ {
		last = f.claimAndProcess(t)
	}

	assert.Equal(t, interfaces.StatusFailed, last.Status)
	assert.Equal(t, 4, last.Attempts)
	assert.Equal(t, int32(4), fetcher.calls.Load())

	remaining, err := f.engine.Claim(ctx, "web")
	require.NoError(t, err)
	assert.Nil(t, remaining)
}

func TestPool_TimeoutIsRecoverable(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", delay: time.Second, result: webResult("https://example.com/")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusPending, job.Status, "timeout classifies as recoverable")
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "timed out")
}

func TestPool_PanicIsContained(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", panics: true}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	job := f.claimAndProcess(t)
	assert.Equal(t, interfaces.StatusPending, job.Status)
	assert.Contains(t, job.LastError, "panic")
}

func TestPool_StartStop(t *testing.T) {
	fetcher := &stubFetcher{kind: "web", result: webResult("https://example.com/")}
	f := newPoolFixture(t, fetcher, config.CacheConfig{})
	ctx := context.Background()

	submitted, err := f.engine.Submit(ctx, "web", "http://example.com")
	require.NoError(t, err)

	f.pool.Start()
	defer f.pool.Stop()

	require.Eventually(t, func() bool {
		job, err := f.engine.GetJob(ctx, submitted.ID)
		return err == nil && job.Status == interfaces.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "pool picks up and completes the job")
}
