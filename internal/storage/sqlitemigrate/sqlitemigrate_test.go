package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyRunsEachFileOnce(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")},
		"m/002_b.sql": {Data: []byte("INSERT INTO a (id) VALUES (1);")},
		"m/notes.txt": {Data: []byte("ignored")},
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Apply(ctx, db, fsys, "m"); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM a").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the insert to run once, got %d rows", n)
	}
}

func TestUpSection(t *testing.T) {
	got := UpSection("-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;")
	if got != "\nSELECT 1;\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if UpSection("SELECT 3;") != "SELECT 3;" {
		t.Fatal("content without markers must be returned whole")
	}
}
