package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPut_SetsFingerprintAndGeneration(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))

	a, changed, err := s.Put(context.Background(), Artifact{StageID: "prd", Content: "# PRD"})
	if err != nil {
		t.Fatal(err)
	}
	if !changed || a.Generation != 1 || a.Fingerprint != Fingerprint("# PRD") {
		t.Fatalf("artifact = %+v changed=%v", a, changed)
	}
	if !a.ProducedAt.Equal(fixed) || a.Source != Generated {
		t.Fatalf("artifact = %+v", a)
	}

	b, changed, err := s.Put(context.Background(), Artifact{StageID: "prd", Content: "# PRD v2"})
	if err != nil {
		t.Fatal(err)
	}
	if !changed || b.Generation != 2 || b.Fingerprint == a.Fingerprint {
		t.Fatalf("replacement = %+v", b)
	}
	if a.Content != "# PRD" {
		t.Fatal("old artifact was mutated by replacement")
	}
}

func TestPut_IdenticalContentIsNoop(t *testing.T) {
	s := New()
	first, _, _ := s.Put(context.Background(), Artifact{StageID: "x", Content: "same"})
	again, changed, err := s.Put(context.Background(), Artifact{StageID: "x", Content: "same"})
	if err != nil {
		t.Fatal(err)
	}
	if changed || again != first {
		t.Fatalf("expected no-op, got changed=%v gen=%d", changed, again.Generation)
	}
}

func TestPut_CancelledContextDoesNotWrite(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.Put(ctx, Artifact{StageID: "x", Content: "late"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.Get("x"); ok {
		t.Fatal("artifact written after cancellation")
	}
}

func TestPut_CopiesInputs(t *testing.T) {
	s := New()
	in := map[string]string{"prd": "abc"}
	a, _, _ := s.Put(context.Background(), Artifact{StageID: "x", Content: "c", Inputs: in})
	in["prd"] = "changed"
	if a.Inputs["prd"] != "abc" {
		t.Fatal("store shares caller's inputs map")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Put(context.Background(), Artifact{StageID: "x", Content: "1"})
	s.Delete("x")
	if _, ok := s.Get("x"); ok {
		t.Fatal("expected deleted")
	}
	a, _, _ := s.Put(context.Background(), Artifact{StageID: "x", Content: "2"})
	if a.Generation != 2 {
		t.Fatalf("generation = %d", a.Generation)
	}
	if s.Fingerprint("missing") != "" {
		t.Fatal("missing fingerprint should be empty")
	}
}

func TestSnapshotAndIDs(t *testing.T) {
	s := New()
	s.Put(context.Background(), Artifact{StageID: "b", Content: "2"})
	s.Put(context.Background(), Artifact{StageID: "a", Content: "1"})
	ids := s.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v", ids)
	}
	if snap := s.Snapshot(); snap["a"].Content != "1" || snap["b"].Content != "2" {
		t.Fatalf("snapshot = %v", snap)
	}
}

// Readers racing a writer must always see a self-consistent artifact.
func TestConcurrentReplaceIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, Artifact{StageID: "arch", Content: "v0"})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				a, ok := s.Get("arch")
				if !ok {
					errs <- fmt.Errorf("artifact vanished")
					return
				}
				if a.Fingerprint != Fingerprint(a.Content) {
					errs <- fmt.Errorf("torn read: %q", a.Content)
					return
				}
			}
		}()
	}
	for i := 1; i <= 500; i++ {
		if _, _, err := s.Put(ctx, Artifact{StageID: "arch", Content: fmt.Sprintf("v%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if a, _ := s.Get("arch"); a.Generation != 501 {
		t.Fatalf("generation = %d", a.Generation)
	}
}

func TestPut_SameContentNewInputsKeepsGeneration(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, Artifact{StageID: "x", Content: "c", Inputs: map[string]string{"u": "1"}})
	a, changed, err := s.Put(ctx, Artifact{StageID: "x", Content: "c", Inputs: map[string]string{"u": "2"}})
	if err != nil {
		t.Fatal(err)
	}
	if changed || a.Generation != 1 || a.Inputs["u"] != "2" {
		t.Fatalf("artifact = %+v changed=%v", a, changed)
	}
}
