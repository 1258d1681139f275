package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	youtubeKind        = "youtube"
	maxWatchPageSize   = 4 << 20 // 4 MiB
	defaultWatchPrefix = "https://www.youtube.com"
)

var (
	captionTrackRe = regexp.MustCompile(`"captionTracks":\[\{"baseUrl":"([^"]+)"`)
	languageRe     = regexp.MustCompile(`"captionTracks":\[\{[^]]*?"languageCode":"([^"]+)"`)
	videoTitleRe   = regexp.MustCompile(`<title>([^<]*)</title>`)
)

// YoutubePayload is the payload document produced by the youtube fetcher.
type YoutubePayload struct {
	VideoID    string `json:"video_id"`
	VideoURL   string `json:"video_url"`
	Title      string `json:"title,omitempty"`
	Language   string `json:"language,omitempty"`
	Transcript string `json:"transcript"`
}

// YoutubeFetcher resolves a video URL to its caption track and converts it to
// a plain transcript.
type YoutubeFetcher struct {
	client    *http.Client
	watchBase string
}

// NewYoutubeFetcher creates a youtube transcript fetcher.
func NewYoutubeFetcher() *YoutubeFetcher {
	return &YoutubeFetcher{
		client:    &http.Client{Timeout: 2 * time.Minute},
		watchBase: defaultWatchPrefix,
	}
}

func (f *YoutubeFetcher) Kind() string { return youtubeKind }

func (f *YoutubeFetcher) Fetch(ctx context.Context, requestURL string) (*Fetched, error) {
	videoID, err := ExtractVideoID(requestURL)
	if err != nil {
		return nil, Terminalf("%v", err)
	}

	videoURL := f.watchBase + "/watch?v=" + videoID

	page, err := f.get(ctx, videoURL, maxWatchPageSize)
	if err != nil {
		return nil, err
	}

	captionURL, language, err := findCaptionTrack(page)
	if err != nil {
		return nil, err
	}

	track, err := f.get(ctx, captionURL, maxWebBodySize)
	if err != nil {
		return nil, err
	}

	transcript, err := TimedTextToTranscript(track)
	if err != nil {
		return nil, Terminalf("convert caption track for %s: %v", videoID, err)
	}

	payload := YoutubePayload{
		VideoID:    videoID,
		VideoURL:   videoURL,
		Title:      findVideoTitle(page),
		Language:   language,
		Transcript: transcript,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal youtube payload: %w", err)
	}

	return &Fetched{
		FinalURL: videoURL,
		Payload:  data,
		Success:  true,
	}, nil
}

func (f *YoutubeFetcher) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, Terminalf("invalid URL %q: %v", target, err)
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Recoverablef("fetch %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, Recoverablef("read body of %s: %v", target, err)
	}
	return body, nil
}

// ExtractVideoID pulls the 11-character video ID out of the common YouTube
// URL shapes: watch?v=, youtu.be/, shorts/ and embed/. A bare ID passes
// through unchanged.
func ExtractVideoID(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("video URL must be provided")
	}

	if isVideoID(trimmed) && !strings.Contains(trimmed, "/") {
		return trimmed, nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid video URL %q", rawURL)
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case strings.HasPrefix(u.Path, "/shorts/"):
		id = strings.TrimPrefix(u.Path, "/shorts/")
	case strings.HasPrefix(u.Path, "/embed/"):
		id = strings.TrimPrefix(u.Path, "/embed/")
	default:
		id = u.Query().Get("v")
	}
	id = strings.Trim(id, "/")

	if !isVideoID(id) {
		return "", fmt.Errorf("no video ID found in %q", rawURL)
	}
	return id, nil
}

func isVideoID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// findCaptionTrack locates the first caption track URL embedded in the watch
// page player config. Videos without captions are a terminal condition:
// retrying will not grow a transcript.
func findCaptionTrack(page []byte) (captionURL, language string, err error) {
	m := captionTrackRe.FindSubmatch(page)
	if m == nil {
		return "", "", Terminalf("no caption tracks available")
	}

	captionURL = strings.ReplaceAll(string(m[1]), "\\u0026", "&")

	if lm := languageRe.FindSubmatch(page); lm != nil {
		language = string(lm[1])
	}
	return captionURL, language, nil
}

func findVideoTitle(page []byte) string {
	m := videoTitleRe.FindSubmatch(page)
	if m == nil {
		return ""
	}
	title := strings.TrimSuffix(strings.TrimSpace(string(m[1])), " - YouTube")
	return title
}
