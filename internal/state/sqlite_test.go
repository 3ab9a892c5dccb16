package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLite_NoRun(t *testing.T) {
	repo := openTestDB(t)
	if _, err := repo.Load(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("got %v", err)
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	repo := openTestDB(t)
	run := sampleRun()
	if err := repo.Save(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	loaded, err := repo.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertRunEqual(t, run, loaded)
}

func TestSQLite_SaveReplacesStageRows(t *testing.T) {
	repo := openTestDB(t)
	run := sampleRun()
	ctx := context.Background()
	if err := repo.Save(ctx, run); err != nil {
		t.Fatal(err)
	}
	delete(run.Stages, "architecture")
	run.Stages["screens"].Status = StatusSucceeded
	run.Stages["screens"].Defects = nil
	run.Status = RunCompleted
	if err := repo.Save(ctx, run); err != nil {
		t.Fatal(err)
	}
	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Stages) != 2 || loaded.Status != RunCompleted {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Stages["screens"].Status != StatusSucceeded || len(loaded.Stages["screens"].Defects) != 0 {
		t.Fatalf("screens = %+v", loaded.Stages["screens"])
	}
}

func TestSQLite_LoadReturnsLatestRun(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	older := sampleRun()
	older.StartedAt = time.Now().Add(-time.Hour).UTC()
	newer := NewRun("shop")
	newer.Stage("prd").Status = StatusRunning
	if err := repo.Save(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}
	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RunID != newer.RunID || len(loaded.Stages) != 1 {
		t.Fatalf("loaded run %s, want %s", loaded.RunID, newer.RunID)
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	repo, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	run := sampleRun()
	if err := repo.Save(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	repo, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	loaded, err := repo.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RunID != run.RunID {
		t.Fatalf("RunID = %q", loaded.RunID)
	}
}
