package catalog

import (
	"context"
	"testing"

	"github.com/boostme/boostme/dbopen"
	_ "modernc.org/sqlite"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

func sampleQuotes() []Quote {
	return []Quote{
		{ID: "c1_0", Body: "Stay hungry.", Author: "A", Tags: []string{"inspired"}},
		{ID: "c1_1", Body: "Ship it.", Author: "B", Tags: []string{"work", "productive"}, TimeStart: "09:00", TimeEnd: "11:00"},
		{ID: "c2_0", Body: "Rest well.", Tags: []string{"calm"}, Source: "community"},
	}
}

func TestReplaceAll_SwapsEntireSnapshot(t *testing.T) {
	// WHAT: ReplaceAll deletes prior rows and inserts the new set in one tx.
	// WHY: Readers must never see a mix of old and new catalog generations.
	s := openStore(t)
	ctx := context.Background()

	if err := s.ReplaceAll(ctx, sampleQuotes()); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := s.ReplaceAll(ctx, []Quote{{ID: "g2_0", Body: "New generation."}}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(got) != 1 || got[0].ID != "g2_0" {
		t.Fatalf("expected only g2_0 after replace, got %+v", got)
	}
}

func TestReplaceAll_DropsRowsWithoutIDOrBody(t *testing.T) {
	// WHAT: Quotes missing an ID or body are not inserted.
	// WHY: The scheduler keys the shown-set by ID; an empty body is undisplayable.
	s := openStore(t)
	ctx := context.Background()

	quotes := append(sampleQuotes(), Quote{Body: "no id"}, Quote{ID: "q_empty"})
	if err := s.ReplaceAll(ctx, quotes); err != nil {
		t.Fatalf("replace: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(sampleQuotes()) {
		t.Fatalf("expected %d rows, got %d", len(sampleQuotes()), n)
	}
}

func TestGetAll_SkipsMalformedRows(t *testing.T) {
	// WHAT: A row whose tags column is not valid JSON is skipped, not fatal.
	// WHY: One corrupt record must not take the whole catalog offline.
	s := openStore(t)
	ctx := context.Background()

	if err := s.ReplaceAll(ctx, sampleQuotes()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (id, body, tags, synced_at) VALUES ('bad', 'x', 'not-json', 0)`); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(got) != len(sampleQuotes()) {
		t.Fatalf("expected %d readable rows, got %d", len(sampleQuotes()), len(got))
	}
	for _, q := range got {
		if q.ID == "bad" {
			t.Fatal("corrupt row leaked into results")
		}
	}
}

func TestGet_RoundTripsTimeRangeAndTags(t *testing.T) {
	// WHAT: Get returns the stored quote with tags and window intact.
	s := openStore(t)
	ctx := context.Background()

	if err := s.ReplaceAll(ctx, sampleQuotes()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	q, err := s.Get(ctx, "c1_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !q.HasTimeRange() || q.TimeStart != "09:00" || q.TimeEnd != "11:00" {
		t.Fatalf("time range lost: %+v", q)
	}
	if !q.HasTag("WORK") {
		t.Fatal("tag lookup should be case-insensitive")
	}
}
