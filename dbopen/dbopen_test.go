package dbopen

import (
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_ForeignKeysPragma(t *testing.T) {
	// WHAT: Foreign keys are enforced by default and WithoutForeignKeys
	// turns them off.
	var fk int

	db := OpenMemory(t)
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys expected ON, got %d", fk)
	}

	db2 := OpenMemory(t, WithoutForeignKeys())
	if err := db2.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if fk != 0 {
		t.Fatalf("foreign_keys expected OFF, got %d", fk)
	}
}
