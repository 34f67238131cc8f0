package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Store reads and replaces the local quote snapshot.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) StoreOption { return func(s *Store) { s.logger = l } }

// NewStore wraps db. The schema must already be applied (see ApplySchema or
// dbopen.WithSchema).
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ReplaceAll swaps the entire snapshot in a single transaction: every
// existing row is deleted and the given quotes inserted. Readers never
// observe a half-replaced catalog. Quotes without an ID are dropped.
func (s *Store) ReplaceAll(ctx context.Context, quotes []Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quotes`); err != nil {
		return fmt.Errorf("catalog: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quotes (id, body, author, url, image, icon, tags, time_start, time_end, source, synced_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("catalog: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, q := range quotes {
		if q.ID == "" || q.Body == "" {
			continue
		}
		tags, err := json.Marshal(q.Tags)
		if err != nil {
			tags = []byte("[]")
		}
		if _, err := stmt.ExecContext(ctx,
			q.ID, q.Body, q.Author, q.URL, q.Image, q.Icon,
			string(tags), q.TimeStart, q.TimeEnd, q.Source, now,
		); err != nil {
			return fmt.Errorf("catalog: insert %s: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit replace: %w", err)
	}
	return nil
}

// GetAll returns every quote in the snapshot. Rows that fail to decode are
// skipped individually so one bad record never hides the rest.
func (s *Store) GetAll(ctx context.Context) ([]Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, author, url, image, icon, tags, time_start, time_end, source
		FROM quotes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		var q Quote
		var tags string
		if err := rows.Scan(&q.ID, &q.Body, &q.Author, &q.URL, &q.Image, &q.Icon,
			&tags, &q.TimeStart, &q.TimeEnd, &q.Source); err != nil {
			s.logger.Warn("catalog: skipping unreadable row", "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
			s.logger.Warn("catalog: skipping row with malformed tags", "id", q.ID, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Get returns a single quote by ID, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (*Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, body, author, url, image, icon, tags, time_start, time_end, source
		FROM quotes WHERE id = ?`, id)
	var q Quote
	var tags string
	if err := row.Scan(&q.ID, &q.Body, &q.Author, &q.URL, &q.Image, &q.Icon,
		&tags, &q.TimeStart, &q.TimeEnd, &q.Source); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return nil, fmt.Errorf("catalog: malformed tags for %s: %w", id, err)
	}
	return &q, nil
}

// Count returns the number of quotes in the snapshot.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n)
	return n, err
}
