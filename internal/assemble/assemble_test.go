package assemble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/store"
)

func seeded(t *testing.T, contents map[string]string) *store.Store {
	t.Helper()
	s := store.New()
	for id, c := range contents {
		if _, _, err := s.Put(context.Background(), store.Artifact{StageID: id, Content: c}); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func archStage(t *testing.T) (registry.Stage, *registry.Registry) {
	t.Helper()
	reg := registry.Default()
	s, _ := reg.Stage(registry.Architecture)
	return s, reg
}

func TestBuild_RequiredThenOptionalInDeclaredOrder(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{
		registry.Guidelines: "use TLS",
		registry.Screens:    "[]",
		registry.PRD:        "# PRD",
		registry.TechStack:  "Go",
	})
	b, err := Build(stage, reg, src)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, blk := range b.Blocks {
		ids = append(ids, blk.StageID)
	}
	if got := strings.Join(ids, ","); got != "tech-stack,prd,screens,guidelines" {
		t.Fatalf("order = %s", got)
	}
	if b.Has(registry.DesignSystem) {
		t.Fatal("absent optional artifact included")
	}
	if !b.Blocks[0].Required || b.Blocks[3].Required {
		t.Fatal("required flags wrong")
	}
}

func TestBuild_MissingRequiredIsInvariantViolation(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{registry.TechStack: "Go"})
	_, err := Build(stage, reg, src)
	if !errors.Is(err, ErrAssemblyInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	var ie *InvariantError
	if !errors.As(err, &ie) || strings.Join(ie.Missing, ",") != "prd,screens" {
		t.Fatalf("err = %#v", err)
	}
}

func TestBuild_ReferencesStoreArtifacts(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{registry.TechStack: "Go", registry.PRD: "p", registry.Screens: "[]"})
	b, err := Build(stage, reg, src)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := src.Get(registry.PRD)
	if b.Blocks[1].Artifact != a {
		t.Fatal("bundle copied the artifact instead of referencing it")
	}
	if b.Inputs()[registry.PRD] != a.Fingerprint {
		t.Fatal("inputs fingerprint mismatch")
	}
	if b.Upstream()[registry.PRD] != "p" {
		t.Fatal("upstream content mismatch")
	}
}

func TestRender_LabelsEveryBlock(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{registry.TechStack: "Go + React", registry.PRD: "# PRD\n", registry.Screens: "[]"})
	b, _ := Build(stage, reg, src)
	out := b.Render()
	for _, want := range []string{
		"===== TECHNOLOGY STACK =====\nGo + React\n===== END TECHNOLOGY STACK =====",
		"===== PRODUCT REQUIREMENTS DOCUMENT =====\n# PRD\n===== END PRODUCT REQUIREMENTS DOCUMENT =====",
		"===== CONFIRMED UI SCREENS =====",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "TECHNOLOGY STACK") > strings.Index(out, "PRODUCT REQUIREMENTS") {
		t.Fatal("render order differs from block order")
	}
}

func TestWithFeedback_DoesNotMutateOriginal(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{registry.TechStack: "Go", registry.PRD: "p", registry.Screens: "[]"})
	b, _ := Build(stage, reg, src)
	fb := b.WithFeedback("1. MissingSection:## Indexes")
	if len(b.Feedback) != 0 {
		t.Fatal("original bundle mutated")
	}
	out := fb.Render()
	if !strings.Contains(out, "VALIDATION FEEDBACK (attempt 1)") || !strings.Contains(out, "MissingSection:## Indexes") {
		t.Fatalf("render = %s", out)
	}
	second := fb.WithFeedback("again")
	if len(second.Feedback) != 2 || len(fb.Feedback) != 1 {
		t.Fatal("feedback chain wrong")
	}
}

func TestPrompt(t *testing.T) {
	b := &Bundle{Stage: "prd"}
	if got := b.Prompt("Write the PRD.\n"); got != "Write the PRD.\n" {
		t.Fatalf("prompt = %q", got)
	}
}

// A bundle built while the store is being replaced sees the old or the new
// artifact, never a mix.
func TestBuild_ConcurrentReplacement(t *testing.T) {
	stage, reg := archStage(t)
	src := seeded(t, map[string]string{registry.TechStack: "Go", registry.PRD: "v0", registry.Screens: "[]"})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			src.Put(context.Background(), store.Artifact{StageID: registry.PRD, Content: strings.Repeat("x", i)})
		}
	}()
	for i := 0; i < 200; i++ {
		b, err := Build(stage, reg, src)
		if err != nil {
			t.Fatal(err)
		}
		a := b.Blocks[1].Artifact
		if store.Fingerprint(a.Content) != a.Fingerprint {
			t.Fatal("torn artifact in bundle")
		}
	}
	wg.Wait()
}
