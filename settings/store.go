package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Schema creates the settings and daily_state tables. Both are single-row
// tables keyed by a fixed id; this is a per-device store.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	id          TEXT PRIMARY KEY CHECK (id = 'default'),
	time_window TEXT NOT NULL DEFAULT 'alltimes',
	max_quotes  INTEGER NOT NULL DEFAULT 3,
	community   INTEGER NOT NULL DEFAULT 1,
	tags        TEXT NOT NULL DEFAULT '[]',
	enabled     INTEGER NOT NULL DEFAULT 1,
	push_token  TEXT NOT NULL DEFAULT '',
	timezone    TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS daily_state (
	id         TEXT PRIMARY KEY CHECK (id = 'default'),
	day        TEXT NOT NULL DEFAULT '',
	count      INTEGER NOT NULL DEFAULT 0,
	shown      TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL DEFAULT 0
);
`

// ApplySchema executes the settings schema against db.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("settings: apply schema: %w", err)
	}
	return nil
}

// Store persists the single settings record and the scheduler's daily state.
type Store struct {
	db *sql.DB
}

// NewStore wraps db. The schema must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts the settings record.
func (s *Store) Save(ctx context.Context, st *Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(st.Tags)
	if err != nil {
		return fmt.Errorf("settings: encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, time_window, max_quotes, community, tags, enabled, push_token, timezone, updated_at)
		VALUES ('default', ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			time_window = excluded.time_window,
			max_quotes  = excluded.max_quotes,
			community   = excluded.community,
			tags        = excluded.tags,
			enabled     = excluded.enabled,
			push_token  = excluded.push_token,
			timezone    = excluded.timezone,
			updated_at  = excluded.updated_at`,
		string(st.TimeWindow), st.MaxQuotes, boolToInt(st.Community), string(tags),
		boolToInt(st.Enabled), st.PushToken, st.Timezone, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

// Get returns the saved settings, or ErrNoSettings when the user has never
// saved any.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT time_window, max_quotes, community, tags, enabled, push_token, timezone
		FROM settings WHERE id = 'default'`)

	var st Settings
	var window, tags string
	var community, enabled int
	err := row.Scan(&window, &st.MaxQuotes, &community, &tags, &enabled, &st.PushToken, &st.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSettings
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	st.TimeWindow = TimeWindow(window)
	st.Community = community != 0
	st.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(tags), &st.Tags); err != nil {
		return nil, fmt.Errorf("settings: decode tags: %w", err)
	}
	return &st, nil
}

// DailyRecord mirrors the scheduler's in-memory daily counters so a restart
// resumes mid-day instead of granting a fresh quota.
type DailyRecord struct {
	Day   string
	Count int
	Shown []string
}

// SaveDaily upserts the daily record.
func (s *Store) SaveDaily(ctx context.Context, rec DailyRecord) error {
	shown, err := json.Marshal(rec.Shown)
	if err != nil {
		return fmt.Errorf("settings: encode shown set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_state (id, day, count, shown, updated_at)
		VALUES ('default', ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			day        = excluded.day,
			count      = excluded.count,
			shown      = excluded.shown,
			updated_at = excluded.updated_at`,
		rec.Day, rec.Count, string(shown), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("settings: save daily state: %w", err)
	}
	return nil
}

// LoadDaily returns the mirrored daily record. A missing row yields a zero
// record, which the scheduler treats as a fresh day.
func (s *Store) LoadDaily(ctx context.Context) (DailyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT day, count, shown FROM daily_state WHERE id = 'default'`)

	var rec DailyRecord
	var shown string
	err := row.Scan(&rec.Day, &rec.Count, &shown)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyRecord{}, nil
	}
	if err != nil {
		return DailyRecord{}, fmt.Errorf("settings: load daily state: %w", err)
	}
	if err := json.Unmarshal([]byte(shown), &rec.Shown); err != nil {
		return DailyRecord{}, fmt.Errorf("settings: decode shown set: %w", err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
