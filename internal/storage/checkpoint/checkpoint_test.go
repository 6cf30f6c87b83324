package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func journals(t *testing.T) map[string]Journal {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return map[string]Journal{"sqlite": store, "memory": NewMemory()}
}

func TestJournalSaveLoadHistory(t *testing.T) {
	ctx := context.Background()
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := j.Load(ctx, "run-1"); err != nil || ok {
				t.Fatalf("expected no checkpoint, got ok=%v err=%v", ok, err)
			}
			steps := []Checkpoint{
				{RunID: "run-1", State: "EnforcerDeployed", EnforcerApp: 1001},
				{RunID: "run-1", State: "AssetMinted", EnforcerApp: 1001, AssetID: 1003},
			}
			for i, cp := range steps {
				if err := j.Save(ctx, cp, Transition{Round: uint64(i + 1), GroupID: "g" + cp.State}); err != nil {
					t.Fatalf("save %s: %v", cp.State, err)
				}
			}
			cp, ok, err := j.Load(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("load: ok=%v err=%v", ok, err)
			}
			if cp.State != "AssetMinted" || cp.AssetID != 1003 || cp.EnforcerApp != 1001 || cp.UpdatedAt.IsZero() {
				t.Fatalf("unexpected checkpoint %+v", cp)
			}
			hist, err := j.History(ctx, "run-1")
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(hist) != 2 || hist[0].State != "EnforcerDeployed" || hist[1].Round != 2 || hist[1].GroupID != "gAssetMinted" {
				t.Fatalf("unexpected history %+v", hist)
			}
		})
	}
}

func TestJournalRequiresRunID(t *testing.T) {
	ctx := context.Background()
	for name, j := range journals(t) {
		if err := j.Save(ctx, Checkpoint{State: "Sold"}, Transition{}); !errors.Is(err, ErrRunIDRequired) {
			t.Fatalf("%s: expected ErrRunIDRequired, got %v", name, err)
		}
		if _, _, err := j.Load(ctx, ""); !errors.Is(err, ErrRunIDRequired) {
			t.Fatalf("%s: expected ErrRunIDRequired, got %v", name, err)
		}
	}
}

func TestStoreReopensExistingJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Save(ctx, Checkpoint{RunID: "r", State: "Listed"}, Transition{Round: 9}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	cp, ok, err := store.Load(ctx, "r")
	if err != nil || !ok || cp.State != "Listed" {
		t.Fatalf("unexpected checkpoint after reopen: %+v ok=%v err=%v", cp, ok, err)
	}
}

func TestJournalPendingStep(t *testing.T) {
	ctx := context.Background()
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			base := Checkpoint{RunID: "run-p", State: "EnforcerDeployed", EnforcerApp: 1001}
			if err := j.Save(ctx, base, Transition{Round: 1, GroupID: "g1"}); err != nil {
				t.Fatalf("save: %v", err)
			}
			waiting := base
			waiting.Pending = Pending{State: "AssetMinted", GroupID: "g2"}
			if err := j.SavePending(ctx, waiting); err != nil {
				t.Fatalf("save pending: %v", err)
			}
			cp, ok, err := j.Load(ctx, "run-p")
			if err != nil || !ok {
				t.Fatalf("load: ok=%v err=%v", ok, err)
			}
			if cp.State != "EnforcerDeployed" || cp.Pending != waiting.Pending {
				t.Fatalf("pending step not kept: %+v", cp)
			}
			hist, err := j.History(ctx, "run-p")
			if err != nil || len(hist) != 1 {
				t.Fatalf("a pending step must not add history: %+v err=%v", hist, err)
			}

			cp.State = "AssetMinted"
			cp.AssetID = 1002
			if err := j.Save(ctx, cp, Transition{Round: 2, GroupID: "g2"}); err != nil {
				t.Fatalf("save confirmed: %v", err)
			}
			cp, _, err = j.Load(ctx, "run-p")
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if !cp.Pending.IsZero() || cp.State != "AssetMinted" {
				t.Fatalf("save should clear the pending step: %+v", cp)
			}
		})
	}
}

func TestStoreMigratesPendingColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	var applied int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", applied)
	}
	if err := store.SavePending(ctx, Checkpoint{RunID: "fresh", State: "Uninitialized", Pending: Pending{State: "EnforcerDeployed", GroupID: "g0"}}); err != nil {
		t.Fatalf("save pending on a new run: %v", err)
	}
	cp, ok, err := store.Load(ctx, "fresh")
	if err != nil || !ok || cp.Pending.GroupID != "g0" {
		t.Fatalf("unexpected checkpoint %+v ok=%v err=%v", cp, ok, err)
	}
}
