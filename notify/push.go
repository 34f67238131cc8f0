package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/boostme/boostme/safeurl"
)

// PushClient delivers notifications to a push provider on behalf of a device
// token. The relay uses it to fan quotes out to registered users.
type PushClient struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	urlOpts []safeurl.Option
}

// PushOption customises a PushClient.
type PushOption func(*PushClient)

// WithPushAPIKey sets the Authorization bearer token sent to the provider.
func WithPushAPIKey(key string) PushOption { return func(c *PushClient) { c.apiKey = key } }

// WithPushRateLimit caps deliveries at r per second with the given burst.
// Default: 50 req/s, burst 10.
func WithPushRateLimit(r rate.Limit, burst int) PushOption {
	return func(c *PushClient) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithPushHTTPClient sets the underlying HTTP client. Default: 10s timeout.
func WithPushHTTPClient(h *http.Client) PushOption { return func(c *PushClient) { c.http = h } }

// WithPrivatePushHost permits a private or loopback provider URL.
func WithPrivatePushHost() PushOption {
	return func(c *PushClient) { c.urlOpts = append(c.urlOpts, safeurl.AllowPrivate()) }
}

// NewPushClient validates the provider URL and returns a client.
func NewPushClient(url string, opts ...PushOption) (*PushClient, error) {
	c := &PushClient{
		url:     url,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(50, 10),
	}
	for _, o := range opts {
		o(c)
	}
	if err := safeurl.Validate(url, c.urlOpts...); err != nil {
		return nil, fmt.Errorf("notify: push provider URL: %w", err)
	}
	return c, nil
}

type pushPayload struct {
	Token        string       `json:"to"`
	Notification Notification `json:"notification"`
}

// Send delivers n to the device identified by token.
func (c *PushClient) Send(ctx context.Context, token string, n Notification) error {
	if token == "" {
		return fmt.Errorf("notify: push requires a device token")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(pushPayload{Token: token, Notification: n})
	if err != nil {
		return fmt.Errorf("notify: encode push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: push: status %d", resp.StatusCode)
	}
	return nil
}
