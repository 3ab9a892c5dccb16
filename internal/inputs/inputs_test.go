package inputs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jorge-barreto/docchain/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadStage_SingleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "stack.md"), "Go, Postgres\n")

	a, err := LoadStage(root, "tech-stack", "stack.md")
	if err != nil {
		t.Fatal(err)
	}
	if a.StageID != "tech-stack" || a.Content != "Go, Postgres\n" || a.Source != store.Supplied {
		t.Fatalf("artifact = %+v", a)
	}
}

func TestLoadStage_GlobConcatenatesInPathOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "b.md"), "second\n")
	writeFile(t, filepath.Join(root, "docs", "a.md"), "first\n")
	writeFile(t, filepath.Join(root, "docs", "nested", "c.md"), "third")
	writeFile(t, filepath.Join(root, "docs", "notes.txt"), "ignored")

	a, err := LoadStage(root, "source-documents", "docs/**/*.md")
	if err != nil {
		t.Fatal(err)
	}
	want := "### docs/a.md\n\nfirst\n\n### docs/b.md\n\nsecond\n\n### docs/nested/c.md\n\nthird\n"
	if a.Content != want {
		t.Fatalf("content =\n%q\nwant\n%q", a.Content, want)
	}
}

func TestResolve_SkipsToolDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, ".docchain", "artifacts", "docs", "prd.md"), "generated")
	writeFile(t, filepath.Join(root, "node_modules", "x", "README.md"), "vendor")

	files, err := Resolve(root, "**/*.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "a.md" {
		t.Fatalf("files = %v", files)
	}
}

func TestResolve_Errors(t *testing.T) {
	root := t.TempDir()
	os.Mkdir(filepath.Join(root, "dir"), 0755)

	if _, err := Resolve(root, "missing.md"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Resolve(root, "*.md"); err == nil || !strings.Contains(err.Error(), "no files match") {
		t.Fatalf("expected no-match error, got %v", err)
	}
	if _, err := Resolve(root, "dir"); err == nil || !strings.Contains(err.Error(), "directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestReadDocument_ConvertsHTML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "brief.html")
	writeFile(t, path, `<html><head><title>Brief</title><style>p{}</style></head>`+
		`<body><p>Ship <strong>fast</strong></p><script>alert(1)</script></body></html>`)

	got, err := ReadDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "# Brief\n\n") {
		t.Fatalf("missing title heading:\n%s", got)
	}
	if !strings.Contains(got, "**fast**") || strings.Contains(got, "alert") {
		t.Fatalf("unexpected conversion:\n%s", got)
	}
}

func TestLoad_SortedByStage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.md"), "b")
	writeFile(t, filepath.Join(root, "a.md"), "a")

	got, err := Load(root, map[string]string{"tech-stack": "b.md", "guidelines": "a.md"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].StageID != "guidelines" || got[1].StageID != "tech-stack" {
		t.Fatalf("got %+v", got)
	}
	if _, err := Load(root, map[string]string{"prd": "nope.md"}); err == nil || !strings.Contains(err.Error(), "input prd") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in       string
		id, spec string
		wantErr  bool
	}{
		{"tech-stack=stack.md", "tech-stack", "stack.md", false},
		{" prd = docs/*.md ", "prd", "docs/*.md", false},
		{"tech-stack", "", "", true},
		{"=x", "", "", true},
		{"x=", "", "", true},
	}
	for _, tt := range tests {
		id, spec, err := ParseFlag(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFlag(%q) err = %v", tt.in, err)
			continue
		}
		if id != tt.id || spec != tt.spec {
			t.Errorf("ParseFlag(%q) = %q, %q", tt.in, id, spec)
		}
	}
}
