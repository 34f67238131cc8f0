// Package relay is the server-side variant of the engine: registered users'
// preferences live in SQLite, a worker claims due users under a visibility
// lease, runs the same ranking policy and fans quotes out through a push
// provider.
package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boostme/boostme/settings"
)

// Schema creates the relay users table. Timestamps are ms since epoch.
const Schema = `
CREATE TABLE IF NOT EXISTS relay_users (
	token        TEXT PRIMARY KEY,
	time_window  TEXT NOT NULL DEFAULT 'alltimes',
	max_quotes   INTEGER NOT NULL DEFAULT 3,
	community    INTEGER NOT NULL DEFAULT 1,
	tags         TEXT NOT NULL DEFAULT '[]',
	enabled      INTEGER NOT NULL DEFAULT 1,
	timezone     TEXT NOT NULL DEFAULT '',
	next_trigger INTEGER NOT NULL DEFAULT 0,
	sent_today   INTEGER NOT NULL DEFAULT 0,
	shown_today  TEXT NOT NULL DEFAULT '[]',
	last_reset   TEXT NOT NULL DEFAULT '',
	lease_until  INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_users_due
	ON relay_users (enabled, next_trigger, lease_until);
`

// ApplySchema executes the relay schema against db.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("relay: apply schema: %w", err)
	}
	return nil
}

// ErrNotFound is returned when no user exists for a token.
var ErrNotFound = errors.New("relay: user not found")

// User is one registered device plus its delivery state.
type User struct {
	Token       string
	Settings    settings.Settings
	NextTrigger time.Time
	SentToday   int
	ShownToday  []string
	LastReset   string // "2006-01-02" in the user's zone
	LeaseUntil  time.Time
}

// Store persists relay users.
type Store struct {
	db *sql.DB
}

// NewStore wraps db. The schema must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert registers or updates a user's preferences. Delivery state
// (counters, trigger, lease) is preserved on update; new users become due
// immediately.
func (s *Store) Upsert(ctx context.Context, token string, st *settings.Settings) error {
	if token == "" {
		return fmt.Errorf("relay: token is required")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(st.Tags)
	if err != nil {
		return fmt.Errorf("relay: encode tags: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relay_users (token, time_window, max_quotes, community, tags, enabled, timezone, next_trigger, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(token) DO UPDATE SET
			time_window = excluded.time_window,
			max_quotes  = excluded.max_quotes,
			community   = excluded.community,
			tags        = excluded.tags,
			enabled     = excluded.enabled,
			timezone    = excluded.timezone,
			updated_at  = excluded.updated_at`,
		token, string(st.TimeWindow), st.MaxQuotes, boolToInt(st.Community), string(tags),
		boolToInt(st.Enabled), st.Timezone, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("relay: upsert user: %w", err)
	}
	return nil
}

// Get returns the user for token, or ErrNotFound.
func (s *Store) Get(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, time_window, max_quotes, community, tags, enabled, timezone,
		       next_trigger, sent_today, shown_today, last_reset, lease_until
		FROM relay_users WHERE token = ?`, token)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// Delete unregisters a user.
func (s *Store) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relay_users WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("relay: delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDue atomically claims up to limit enabled users whose trigger has
// passed and whose lease has expired, extending each lease so concurrent
// workers never process the same user twice.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	nowMs := now.UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		UPDATE relay_users
		SET lease_until = ?
		WHERE token IN (
			SELECT token FROM relay_users
			WHERE enabled = 1 AND next_trigger <= ? AND lease_until <= ?
			ORDER BY next_trigger ASC
			LIMIT ?
		)
		RETURNING token, time_window, max_quotes, community, tags, enabled, timezone,
		          next_trigger, sent_today, shown_today, last_reset, lease_until`,
		now.Add(lease).UnixMilli(), nowMs, nowMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("relay: claim due: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CompleteCycle writes back a processed user's delivery state and releases
// the lease.
func (s *Store) CompleteCycle(ctx context.Context, u *User) error {
	shown, err := json.Marshal(u.ShownToday)
	if err != nil {
		return fmt.Errorf("relay: encode shown set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE relay_users
		SET next_trigger = ?, sent_today = ?, shown_today = ?, last_reset = ?,
		    lease_until = 0, updated_at = ?
		WHERE token = ?`,
		u.NextTrigger.UnixMilli(), u.SentToday, string(shown), u.LastReset,
		time.Now().UnixMilli(), u.Token,
	)
	if err != nil {
		return fmt.Errorf("relay: complete cycle: %w", err)
	}
	return nil
}

// Release drops a claim without writing state, making the user immediately
// claimable again.
func (s *Store) Release(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE relay_users SET lease_until = 0 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("relay: release: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var window, tags, shown string
	var community, enabled int
	var trigMs, leaseMs int64
	err := row.Scan(&u.Token, &window, &u.Settings.MaxQuotes, &community, &tags,
		&enabled, &u.Settings.Timezone, &trigMs, &u.SentToday, &shown, &u.LastReset, &leaseMs)
	if err != nil {
		return nil, err
	}
	u.Settings.TimeWindow = settings.TimeWindow(window)
	u.Settings.Community = community != 0
	u.Settings.Enabled = enabled != 0
	u.Settings.PushToken = u.Token
	if err := json.Unmarshal([]byte(tags), &u.Settings.Tags); err != nil {
		return nil, fmt.Errorf("relay: decode tags for %s: %w", u.Token, err)
	}
	if err := json.Unmarshal([]byte(shown), &u.ShownToday); err != nil {
		return nil, fmt.Errorf("relay: decode shown set for %s: %w", u.Token, err)
	}
	u.NextTrigger = time.UnixMilli(trigMs)
	u.LeaseUntil = time.UnixMilli(leaseMs)
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
