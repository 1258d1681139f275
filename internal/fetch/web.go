package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	webKind        = "web"
	webUserAgent   = "crawlqueue/1.0 (+https://github.com/mtr002/Crawl-Queue)"
	maxWebBodySize = 8 << 20 // 8 MiB
)

// WebPayload is the payload document produced by the web fetcher.
type WebPayload struct {
	Markdown   string `json:"markdown"`
	Title      string `json:"title,omitempty"`
	HTMLLength int    `json:"html_length"`
}

// WebFetcher downloads a web page, follows redirects and extracts a
// markdown-flavored text rendition of its content.
type WebFetcher struct {
	client *http.Client
}

// NewWebFetcher creates a web fetcher with its own HTTP client. Per-job
// deadlines come from the caller's context; the client timeout is a backstop.
func NewWebFetcher() *WebFetcher {
	return &WebFetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (f *WebFetcher) Kind() string { return webKind }

// Fetch downloads the page. The final URL is taken from the response after
// redirects, so a submitted URL and its resolved form both end up recorded.
func (f *WebFetcher) Fetch(ctx context.Context, requestURL string) (*Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, Terminalf("invalid URL %q: %v", requestURL, err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Recoverablef("fetch %s: %v", requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, requestURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodySize))
	if err != nil {
		return nil, Recoverablef("read body of %s: %v", requestURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, Terminalf("parse HTML of %s: %v", requestURL, err)
	}

	payload := WebPayload{
		Markdown:   renderMarkdown(doc),
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		HTMLLength: len(body),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal web payload: %w", err)
	}

	return &Fetched{
		FinalURL: resp.Request.URL.String(),
		Payload:  data,
		Success:  true,
	}, nil
}

// renderMarkdown walks content elements in document order and produces a flat
// markdown rendition: headings, paragraphs and list items. Script, style and
// chrome elements are dropped first.
func renderMarkdown(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, nav, header, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(collapseWhitespace(sel.Text()))
		if text == "" {
			return
		}

		switch goquery.NodeName(sel) {
		case "h1":
			blocks = append(blocks, "# "+text)
		case "h2":
			blocks = append(blocks, "## "+text)
		case "h3":
			blocks = append(blocks, "### "+text)
		case "h4":
			blocks = append(blocks, "#### "+text)
		case "h5":
			blocks = append(blocks, "##### "+text)
		case "h6":
			blocks = append(blocks, "###### "+text)
		case "li":
			blocks = append(blocks, "- "+text)
		case "blockquote":
			blocks = append(blocks, "> "+text)
		case "pre":
			blocks = append(blocks, "```\n"+sel.Text()+"\n```")
		default:
			blocks = append(blocks, text)
		}
	})

	return strings.Join(blocks, "\n\n")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
