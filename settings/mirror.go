package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boostme/boostme/safeurl"
)

// Mirror pushes settings to and pulls them from the relay service. The local
// store stays authoritative: callers treat mirror failures as non-fatal.
type Mirror struct {
	baseURL string
	http    *http.Client
	urlOpts []safeurl.Option
}

// MirrorOption customises a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorHTTPClient sets the underlying HTTP client. Default: 10s timeout.
func WithMirrorHTTPClient(h *http.Client) MirrorOption { return func(m *Mirror) { m.http = h } }

// WithPrivateMirrorHost permits a private or loopback mirror URL.
func WithPrivateMirrorHost() MirrorOption {
	return func(m *Mirror) { m.urlOpts = append(m.urlOpts, safeurl.AllowPrivate()) }
}

// NewMirror validates baseURL and returns a Mirror.
func NewMirror(baseURL string, opts ...MirrorOption) (*Mirror, error) {
	m := &Mirror{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(m)
	}
	if err := safeurl.Validate(baseURL, m.urlOpts...); err != nil {
		return nil, fmt.Errorf("settings: mirror URL: %w", err)
	}
	return m, nil
}

// Save pushes the settings record to the relay. The record must carry a
// push token: that is the relay's primary key.
func (m *Mirror) Save(ctx context.Context, st *Settings) error {
	if st.PushToken == "" {
		return fmt.Errorf("settings: mirror save requires a push token")
	}
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/settings", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("settings: build mirror request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("settings: mirror save: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("settings: mirror save: status %d", resp.StatusCode)
	}
	return nil
}

// Fetch pulls the settings stored for token. Returns (nil, nil) when the
// relay has no record: absence is a signal, not an error.
func (m *Mirror) Fetch(ctx context.Context, token string) (*Settings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/settings?token="+token, nil)
	if err != nil {
		return nil, fmt.Errorf("settings: build mirror request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settings: mirror fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("settings: mirror fetch: status %d", resp.StatusCode)
	}

	data, err := safeurl.LimitedReadAll(resp.Body, safeurl.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("settings: mirror fetch: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}
	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("settings: decode mirror response: %w", err)
	}
	return &st, nil
}
