package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boostme/boostme/catalog"
)

func TestFromQuote_RendersTitleAndFallback(t *testing.T) {
	// WHAT: Author becomes the title; quotes without one get the product title.
	n := FromQuote(catalog.Quote{ID: "q1", Body: "Keep going.", Author: "Anon", URL: "https://example.com/q1"})
	if n.Title != "Anon" || n.Tag != "q1" || n.Data["url"] != "https://example.com/q1" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	n = FromQuote(catalog.Quote{ID: "q2", Body: "No author here."})
	if n.Title != "Your daily boost" {
		t.Fatalf("expected fallback title, got %q", n.Title)
	}
	if n.Data != nil {
		t.Fatalf("expected no data without URL, got %+v", n.Data)
	}
}

func TestWebhookSink_SignsBody(t *testing.T) {
	// WHAT: With a secret configured, X-Signature-256 carries the body HMAC.
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: "s3cret", AllowPrivate: true})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Send(context.Background(), Notification{Title: "T", Body: "B"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature mismatch: got %s, want %s", gotSig, want)
	}

	var n Notification
	if err := json.Unmarshal(gotBody, &n); err != nil {
		t.Fatalf("decode delivered body: %v", err)
	}
	if n.Title != "T" || n.Body != "B" {
		t.Fatalf("delivered notification mismatch: %+v", n)
	}
}

func TestWebhookSink_NonSuccessStatusIsError(t *testing.T) {
	// WHAT: 5xx responses surface as errors so the engine can log them.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, AllowPrivate: true})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Send(context.Background(), Notification{Body: "x"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestPushClient_SendsTokenAndPayload(t *testing.T) {
	// WHAT: Push deliveries carry the device token and bearer auth.
	var gotAuth string
	var payload pushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&payload)
	}))
	t.Cleanup(srv.Close)

	c, err := NewPushClient(srv.URL, WithPushAPIKey("key-1"), WithPrivatePushHost())
	if err != nil {
		t.Fatalf("new push client: %v", err)
	}
	if err := c.Send(context.Background(), "tok-9", Notification{Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("auth header: %q", gotAuth)
	}
	if payload.Token != "tok-9" || payload.Notification.Body != "hello" {
		t.Fatalf("payload mismatch: %+v", payload)
	}

	if err := c.Send(context.Background(), "", Notification{}); err == nil {
		t.Fatal("expected error for empty token")
	}
}
