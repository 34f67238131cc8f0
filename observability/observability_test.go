package observability

import (
	"context"
	"testing"
	"time"

	"github.com/boostme/boostme/dbopen"
	_ "modernc.org/sqlite"
)

func openEvents(t *testing.T) *EventLogger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewEventLogger(db)
}

func TestLogDelivery_AppearsInRecent(t *testing.T) {
	// WHAT: A logged delivery shows up in RecentDeliveries, newest first.
	l := openEvents(t)
	ctx := context.Background()

	l.LogDelivery(ctx, DeliveryEvent{QuoteID: "q1", Title: "A", Sink: "log", Success: true})
	l.LogDelivery(ctx, DeliveryEvent{QuoteID: "q2", Title: "B", Sink: "webhook", Success: false, Error: "status 502"})

	recs, err := l.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].QuoteID != "q2" || recs[0].Success || recs[0].Error != "status 502" {
		t.Fatalf("newest record wrong: %+v", recs[0])
	}
}

func TestCleanup_RemovesOldRows(t *testing.T) {
	// WHAT: Rows past the retention window are deleted, recent ones kept.
	l := openEvents(t)
	ctx := context.Background()

	l.LogDelivery(ctx, DeliveryEvent{QuoteID: "fresh", Sink: "log", Success: true})
	old := time.Now().Add(-48 * time.Hour).Unix()
	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO notification_log (event_id, quote_id, created_at)
		VALUES ('ntf_old', 'stale', ?)`, old); err != nil {
		t.Fatalf("seed old row: %v", err)
	}

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row removed, got %d", n)
	}
	recs, err := l.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].QuoteID != "fresh" {
		t.Fatalf("wrong survivor: %+v", recs)
	}
}

func TestHeartbeatWriter_WritesRow(t *testing.T) {
	// WHAT: WriteHeartbeat inserts a row with runtime stats populated.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	hw := NewHeartbeatWriter(db, "boostme", time.Minute)
	if err := hw.WriteHeartbeat(); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	var n, goroutines int
	if err := db.QueryRow(
		`SELECT COUNT(*), MAX(goroutines_count) FROM worker_heartbeats WHERE worker_name = 'boostme'`,
	).Scan(&n, &goroutines); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 || goroutines < 1 {
		t.Fatalf("unexpected heartbeat row: count=%d goroutines=%d", n, goroutines)
	}
}
