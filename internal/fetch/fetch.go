// Package fetch contains the fetcher collaborators the worker loop dispatches
// jobs to, keyed by worker kind. Fetchers are opaque to the queue engine:
// they take a request URL and return a resolved URL plus a kind-specific
// payload document, or a classified error.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Error is a classified fetcher failure. Recoverable errors (timeouts,
// transient network faults) trigger a requeue up to the configured attempt
// limit; terminal errors (resource permanently unavailable) fail the job
// immediately.
type Error struct {
	Recoverable bool
	Detail      string
}

func (e *Error) Error() string {
	return e.Detail
}

// Recoverablef builds a recoverable fetch error.
func Recoverablef(format string, args ...any) *Error {
	return &Error{Recoverable: true, Detail: fmt.Sprintf(format, args...)}
}

// Terminalf builds a terminal fetch error.
func Terminalf(format string, args ...any) *Error {
	return &Error{Recoverable: false, Detail: fmt.Sprintf(format, args...)}
}

// IsRecoverable reports whether err should lead to a requeue. Unclassified
// errors (including context deadline expiry) count as recoverable: the safe
// assumption for at-least-once delivery is that the fault is transient.
func IsRecoverable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Recoverable
	}
	return true
}

// Fetched is the outcome of a successful fetcher invocation. FinalURL is the
// resolved resource that was actually fetched and is always set.
type Fetched struct {
	FinalURL string
	Payload  json.RawMessage
	Success  bool
}

// Fetcher executes one kind of fetch job.
type Fetcher interface {
	Kind() string
	Fetch(ctx context.Context, requestURL string) (*Fetched, error)
}

// Registry maps worker kinds to fetchers.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry creates a registry holding the given fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher)}
	for _, f := range fetchers {
		r.fetchers[f.Kind()] = f
	}
	return r
}

// Get returns the fetcher for a worker kind, or nil if none is registered.
func (r *Registry) Get(kind string) Fetcher {
	return r.fetchers[kind]
}

// Has reports whether a fetcher is registered for the worker kind.
func (r *Registry) Has(kind string) bool {
	_, ok := r.fetchers[kind]
	return ok
}

// Kinds returns the registered worker kinds in stable order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.fetchers))
	for k := range r.fetchers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// statusError classifies an unexpected HTTP status. Client errors that will
// not heal on their own are terminal; rate limiting and server errors are
// worth retrying.
func statusError(status int, url string) *Error {
	switch {
	case status == 429 || status >= 500:
		return Recoverablef("unexpected status %d fetching %s", status, url)
	default:
		return Terminalf("unexpected status %d fetching %s", status, url)
	}
}
