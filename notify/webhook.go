package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boostme/boostme/safeurl"
)

// WebhookConfig configures an outbound webhook sink.
type WebhookConfig struct {
	// Name identifies the sink in logs. Default: "webhook".
	Name string `yaml:"name" json:"name"`
	// URL receives notification JSON via POST.
	URL string `yaml:"url" json:"url"`
	// Secret, when set, signs the body: X-Signature-256 carries the
	// hex-encoded HMAC-SHA256.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
	// Timeout bounds each delivery. Default: 10s.
	Timeout time.Duration `yaml:"-" json:"timeout,omitempty"`
	// AllowPrivate permits private and loopback target URLs.
	AllowPrivate bool `yaml:"allow_private,omitempty" json:"allow_private,omitempty"`
}

// UnmarshalYAML decodes the timeout from Go duration syntax ("10s").
func (c *WebhookConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name         string `yaml:"name"`
		URL          string `yaml:"url"`
		Secret       string `yaml:"secret"`
		Timeout      string `yaml:"timeout"`
		AllowPrivate bool   `yaml:"allow_private"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.URL = raw.URL
	c.Secret = raw.Secret
	c.AllowPrivate = raw.AllowPrivate
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("notify: bad webhook timeout %q: %w", raw.Timeout, err)
		}
		c.Timeout = d
	}
	return nil
}

// WebhookSink POSTs notifications as JSON to a configured URL.
type WebhookSink struct {
	cfg  WebhookConfig
	http *http.Client
}

// NewWebhookSink validates the target URL and returns a sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	var urlOpts []safeurl.Option
	if cfg.AllowPrivate {
		urlOpts = append(urlOpts, safeurl.AllowPrivate())
	}
	if err := safeurl.Validate(cfg.URL, urlOpts...); err != nil {
		return nil, fmt.Errorf("notify: webhook URL: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "webhook"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookSink{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return s.cfg.Name }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook %s: %w", s.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook %s: status %d", s.cfg.Name, resp.StatusCode)
	}
	return nil
}
