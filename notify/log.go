package notify

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the structured log. It is the default
// display surface for headless runs and the debugging aid everywhere else.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, n Notification) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("notify: quote", "title", n.Title, "body", n.Body, "tag", n.Tag)
	return nil
}
