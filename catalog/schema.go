package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the quotes table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id          TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	author      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	image       TEXT NOT NULL DEFAULT '',
	icon        TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	time_start  TEXT NOT NULL DEFAULT '',
	time_end    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	synced_at   INTEGER NOT NULL DEFAULT 0
);
`

// ApplySchema executes the catalog schema against db.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: apply schema: %w", err)
	}
	return nil
}
