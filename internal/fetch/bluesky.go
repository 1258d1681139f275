package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	blueskyKind        = "bluesky"
	defaultBlueskyAPI  = "https://public.api.bsky.app"
	blueskyFeedLimit   = 25
	blueskyFeedFilter  = "posts_and_author_threads"
	blueskyProfileBase = "https://bsky.app/profile/"
)

// BlueskyPayload is the payload document produced by the bluesky fetcher.
type BlueskyPayload struct {
	Actor      string          `json:"actor"`
	ProfileURL string          `json:"profile_url"`
	PostCount  int             `json:"post_count"`
	Cursor     string          `json:"cursor,omitempty"`
	FetchedAt  string          `json:"fetched_at"`
	Feed       json.RawMessage `json:"feed"`
}

// BlueskyFetcher pulls an actor's feed from the public Bluesky AppView. The
// request URL for this kind is the actor handle or DID, not an http URL.
type BlueskyFetcher struct {
	client  *http.Client
	baseURL string
}

// NewBlueskyFetcher creates a bluesky actor feed fetcher.
func NewBlueskyFetcher() *BlueskyFetcher {
	return &BlueskyFetcher{
		client:  &http.Client{Timeout: time.Minute},
		baseURL: defaultBlueskyAPI,
	}
}

func (f *BlueskyFetcher) Kind() string { return blueskyKind }

func (f *BlueskyFetcher) Fetch(ctx context.Context, requestURL string) (*Fetched, error) {
	actor := normalizeActor(requestURL)
	if actor == "" {
		return nil, Terminalf("actor handle or DID must be provided")
	}

	endpoint := fmt.Sprintf("%s/xrpc/app.bsky.feed.getAuthorFeed?%s", f.baseURL, url.Values{
		"actor":  {actor},
		"limit":  {fmt.Sprintf("%d", blueskyFeedLimit)},
		"filter": {blueskyFeedFilter},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Terminalf("invalid actor %q: %v", actor, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Recoverablef("fetch feed for %s: %v", actor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, endpoint)
	}

	var feed struct {
		Feed   json.RawMessage `json:"feed"`
		Cursor string          `json:"cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, Recoverablef("decode feed for %s: %v", actor, err)
	}

	payload := BlueskyPayload{
		Actor:      actor,
		ProfileURL: blueskyProfileBase + actor,
		PostCount:  countFeedItems(feed.Feed),
		Cursor:     feed.Cursor,
		FetchedAt:  time.Now().UTC().Format(time.RFC3339),
		Feed:       feed.Feed,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal bluesky payload: %w", err)
	}

	return &Fetched{
		FinalURL: payload.ProfileURL,
		Payload:  data,
		Success:  true,
	}, nil
}

// normalizeActor accepts a bare handle, an @-prefixed handle, a DID or a
// bsky.app profile URL and reduces them all to the actor identifier.
func normalizeActor(raw string) string {
	actor := strings.TrimSpace(raw)
	actor = strings.TrimPrefix(actor, blueskyProfileBase)
	actor = strings.TrimPrefix(actor, "@")
	return strings.Trim(actor, "/")
}

func countFeedItems(feed json.RawMessage) int {
	var items []json.RawMessage
	if err := json.Unmarshal(feed, &items); err != nil {
		return 0
	}
	return len(items)
}
