package observability

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema contains the DDL for the observability tables.
const Schema = `
CREATE TABLE IF NOT EXISTS notification_log (
	event_id   TEXT PRIMARY KEY,
	quote_id   TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	sink       TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_log_time
	ON notification_log(created_at DESC);

CREATE TABLE IF NOT EXISTS worker_heartbeats (
	heartbeat_id     TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
	worker_name      TEXT NOT NULL,
	hostname         TEXT NOT NULL,
	worker_pid       INTEGER NOT NULL,
	timestamp        INTEGER NOT NULL,
	goroutines_count INTEGER,
	memory_alloc_mb  REAL,
	gc_count         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
	ON worker_heartbeats(worker_name, timestamp DESC);
`

// ApplySchema executes the observability schema against db.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("observability: apply schema: %w", err)
	}
	return nil
}
