package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/boostme/boostme/safeurl"
)

// Client pages quotes from the remote quote service.
//
// The wire contract is GET {base}/quotes?page=N returning {"quotes":[...]}.
// An empty quotes array means the last page was passed.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	sanitizer *bluemonday.Policy
	maxBytes  int64
	urlOpts   []safeurl.Option
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Default: 15s timeout.
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

// WithRateLimit caps page fetches at r requests per second.
// Default: 5 req/s with a burst of 1.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithMaxBytes caps the per-page response body size.
// Default: safeurl.MaxResponseBody.
func WithMaxBytes(n int64) ClientOption { return func(c *Client) { c.maxBytes = n } }

// WithPrivateHost permits a private or loopback base URL (device-local
// quote services, development).
func WithPrivateHost() ClientOption {
	return func(c *Client) { c.urlOpts = append(c.urlOpts, safeurl.AllowPrivate()) }
}

// NewClient validates baseURL (scheme and SSRF checks) and returns a Client.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(5, 1),
		sanitizer: bluemonday.StrictPolicy(),
		maxBytes:  safeurl.MaxResponseBody,
	}
	for _, o := range opts {
		o(c)
	}
	if err := safeurl.Validate(baseURL, c.urlOpts...); err != nil {
		return nil, fmt.Errorf("catalog: base URL: %w", err)
	}
	return c, nil
}

// wireQuote is the remote representation. The service sends the display
// window as a two-element [start, end] tuple.
type wireQuote struct {
	ID        string   `json:"_id"`
	Body      string   `json:"body"`
	Author    string   `json:"author"`
	URL       string   `json:"url"`
	Image     string   `json:"image"`
	Icon      string   `json:"icon"`
	Tags      []string `json:"tag"`
	TimeRange []string `json:"timerange"`
	Source    string   `json:"source"`
}

type quotesPage struct {
	Quotes []wireQuote `json:"quotes"`
}

// Page fetches page n (0-based). Returns an empty slice once past the last
// page. Text fields are sanitized: remote content is untrusted.
func (c *Client) Page(ctx context.Context, n int) ([]Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/quotes?page=%d", c.baseURL, n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch page %d: %w", n, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: fetch page %d: status %d", n, resp.StatusCode)
	}

	body, err := safeurl.LimitedReadAll(resp.Body, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("catalog: read page %d: %w", n, err)
	}

	var page quotesPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("catalog: decode page %d: %w", n, err)
	}

	out := make([]Quote, 0, len(page.Quotes))
	for _, w := range page.Quotes {
		q := Quote{
			ID:     strings.TrimSpace(w.ID),
			Body:   c.clean(w.Body),
			Author: c.clean(w.Author),
			URL:    strings.TrimSpace(w.URL),
			Image:  strings.TrimSpace(w.Image),
			Icon:   strings.TrimSpace(w.Icon),
			Source: c.clean(w.Source),
		}
		for _, t := range w.Tags {
			if t = c.clean(t); t != "" {
				q.Tags = append(q.Tags, t)
			}
		}
		if len(w.TimeRange) == 2 {
			q.TimeStart = strings.TrimSpace(w.TimeRange[0])
			q.TimeEnd = strings.TrimSpace(w.TimeRange[1])
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *Client) clean(s string) string {
	return strings.TrimSpace(c.sanitizer.Sanitize(s))
}
