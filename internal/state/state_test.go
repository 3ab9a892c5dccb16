package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jorge-barreto/docchain/internal/store"
	"github.com/jorge-barreto/docchain/internal/validate"
)

func sampleRun() *RunState {
	run := NewRun("shop")
	prd := run.Stage("prd")
	prd.Status = StatusSucceeded
	prd.Content = "# PRD"
	prd.Fingerprint = store.Fingerprint("# PRD")
	prd.Source = string(store.Generated)
	prd.Inputs = map[string]string{"source-documents": "abc"}
	prd.Retries = 1
	prd.Attempts = 2
	prd.ProducedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	screens := run.Stage("screens")
	screens.Status = StatusFailed
	screens.Defects = []validate.Defect{{Rule: validate.MissingField, Subject: "[0].screenType"}}
	screens.Error = "contract violation"

	arch := run.Stage("architecture")
	arch.Status = StatusBlocked
	arch.BlockedBy = "screens"
	return run
}

func TestNewRun(t *testing.T) {
	run := NewRun("shop")
	if run.RunID == "" || run.Status != RunRunning || run.Project != "shop" {
		t.Fatalf("run = %+v", run)
	}
	if NewRun("shop").RunID == run.RunID {
		t.Fatal("run ids repeat")
	}
	if rec := run.Stage("prd"); rec.Status != StatusPending {
		t.Fatalf("new record status = %q", rec.Status)
	}
}

func TestClone_IsDeep(t *testing.T) {
	run := sampleRun()
	cp := run.Clone()
	cp.Stages["prd"].Inputs["source-documents"] = "changed"
	cp.Stages["screens"].Defects[0].Subject = "x"
	cp.Stages["prd"].Status = StatusFailed
	if run.Stages["prd"].Inputs["source-documents"] != "abc" {
		t.Fatal("inputs shared")
	}
	if run.Stages["screens"].Defects[0].Subject != "[0].screenType" {
		t.Fatal("defects shared")
	}
	if run.Stages["prd"].Status != StatusSucceeded {
		t.Fatal("record shared")
	}
}

func TestArtifacts_OnlySucceeded(t *testing.T) {
	arts := sampleRun().Artifacts()
	if len(arts) != 1 || arts[0].StageID != "prd" {
		t.Fatalf("artifacts = %+v", arts)
	}
	if arts[0].Inputs["source-documents"] != "abc" || arts[0].Source != store.Generated {
		t.Fatalf("artifact = %+v", arts[0])
	}
}

func TestFileRepository_NoRun(t *testing.T) {
	repo := NewFileRepository(t.TempDir())
	if _, err := repo.Load(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("got %v", err)
	}
}

func TestFileRepository_RoundTrip(t *testing.T) {
	repo := NewFileRepository(t.TempDir())
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

func assertRunEqual(t *testing.T, want, got *RunState) {
	t.Helper()
	if got.RunID != want.RunID || got.Project != want.Project || got.Status != want.Status {
		t.Fatalf("run header = %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if len(got.Stages) != len(want.Stages) {
		t.Fatalf("stages = %d, want %d", len(got.Stages), len(want.Stages))
	}
	prd := got.Stages["prd"]
	if prd.Content != "# PRD" || prd.Retries != 1 || prd.Attempts != 2 || prd.Inputs["source-documents"] != "abc" {
		t.Fatalf("prd = %+v", prd)
	}
	if !prd.ProducedAt.Equal(want.Stages["prd"].ProducedAt) {
		t.Fatalf("ProducedAt = %v", prd.ProducedAt)
	}
	screens := got.Stages["screens"]
	if len(screens.Defects) != 1 || screens.Defects[0].String() != "MissingField:[0].screenType" {
		t.Fatalf("screens = %+v", screens)
	}
	if got.Stages["architecture"].BlockedBy != "screens" {
		t.Fatalf("architecture = %+v", got.Stages["architecture"])
	}
}
