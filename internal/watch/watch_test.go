package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/docchain/internal/store"
)

func setup(t *testing.T) (string, *Watcher) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs", "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(root, "stack.md"), []byte("Go\n"), 0644)
	os.WriteFile(filepath.Join(root, "docs", "a.md"), []byte("a\n"), 0644)

	w, err := New(Config{
		Root:     root,
		Inputs:   map[string]string{"tech-stack": "stack.md", "source-documents": "docs/**/*.md"},
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return root, w
}

// waitFor reads updates until one satisfies ok. Intermediate states of a
// file being written may arrive first.
func waitFor(t *testing.T, w *Watcher, ok func(store.Artifact) bool) store.Artifact {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case a := <-w.Updates():
			if ok(a) {
				return a
			}
		case <-deadline:
			t.Fatal("expected update not delivered")
		}
	}
}

func TestStages_MatchesPathsAndGlobs(t *testing.T) {
	root, w := setup(t)
	defer w.fsw.Close()

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(root, "stack.md"), "tech-stack"},
		{filepath.Join(root, "docs", "a.md"), "source-documents"},
		{filepath.Join(root, "docs", "sub", "b.md"), "source-documents"},
		{filepath.Join(root, "docs", "notes.txt"), ""},
		{filepath.Join(root, "other.md"), ""},
	}
	for _, tt := range tests {
		if got := strings.Join(w.Stages(tt.path), ","); got != tt.want {
			t.Errorf("Stages(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRun_EmitsChangedInput(t *testing.T) {
	root, w := setup(t)
	w.Prime([]store.Artifact{{StageID: "tech-stack", Content: "Go\n"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(root, "stack.md"), []byte("Go, Postgres\n"), 0644); err != nil {
		t.Fatal(err)
	}
	a := waitFor(t, w, func(a store.Artifact) bool { return a.Content == "Go, Postgres\n" })
	if a.StageID != "tech-stack" || a.Source != store.Supplied {
		t.Fatalf("update = %+v", a)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := <-w.Updates(); ok {
		t.Fatal("updates channel not closed")
	}
}

func TestRun_NewFileInGlobDirectory(t *testing.T) {
	root, w := setup(t)
	w.Prime([]store.Artifact{{StageID: "source-documents", Content: "### docs/a.md\n\na\n"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	os.WriteFile(filepath.Join(root, "docs", "sub", "b.md"), []byte("b\n"), 0644)
	a := waitFor(t, w, func(a store.Artifact) bool { return strings.Contains(a.Content, "### docs/sub/b.md") })
	if a.StageID != "source-documents" {
		t.Fatalf("update = %+v", a)
	}
}
