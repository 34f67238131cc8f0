// Package observability records the engine's delivery trail and liveness in
// SQLite: one row per notification attempt plus periodic worker heartbeats.
// Writers are non-blocking; a failing observability store never stalls a
// notification cycle.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/boostme/boostme/idgen"
)

// DeliveryEvent is one notification attempt.
type DeliveryEvent struct {
	QuoteID string
	Title   string
	Sink    string
	Success bool
	Error   string
}

// EventLogger writes delivery events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by db. The schema must already be
// applied.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("ntf_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogDelivery records a delivery attempt. Errors are logged via slog but do
// not propagate.
func (l *EventLogger) LogDelivery(ctx context.Context, ev DeliveryEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO notification_log (event_id, quote_id, title, sink, success, error, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		l.newID(), ev.QuoteID, ev.Title, ev.Sink, ev.Success, ev.Error, time.Now().Unix())
	if err != nil {
		slog.Error("observability: delivery log failed", "error", err, "quote_id", ev.QuoteID)
	}
}

// DeliveryRecord is one row from the delivery trail.
type DeliveryRecord struct {
	EventID   string    `json:"event_id"`
	QuoteID   string    `json:"quote_id"`
	Title     string    `json:"title"`
	Sink      string    `json:"sink"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentDeliveries returns the latest limit delivery events, newest first.
func (l *EventLogger) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, quote_id, title, sink, success, error, created_at
		FROM notification_log ORDER BY created_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: query deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		var ts int64
		var success int
		if err := rows.Scan(&r.EventID, &r.QuoteID, &r.Title, &r.Sink, &success, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("observability: scan delivery: %w", err)
		}
		r.Success = success != 0
		r.CreatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup deletes delivery rows older than retention. Returns rows removed.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}
