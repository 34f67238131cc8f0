package notify

import (
	"context"
	"sync"
)

// MemorySink records notifications for inspection in tests.
type MemorySink struct {
	mu   sync.Mutex
	sent []Notification
	// Err, when set, is returned by every Send.
	Err error
}

// Name implements Sink.
func (s *MemorySink) Name() string { return "memory" }

// Send implements Sink.
func (s *MemorySink) Send(_ context.Context, n Notification) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *MemorySink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.sent))
	copy(out, s.sent)
	return out
}
