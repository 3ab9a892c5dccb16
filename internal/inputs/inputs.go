// Package inputs turns the files named in the project config into the
// supplied artifacts of input stages.
package inputs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jorge-barreto/docchain/internal/store"
)

const maxFileSize = 4 << 20 // 4MB per file

// skipDirs are never searched by glob patterns.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
	".docchain":    true,
}

// Resolve expands spec, a file path or doublestar glob relative to root,
// into a sorted list of absolute file paths.
func Resolve(root, spec string) ([]string, error) {
	pattern := spec
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(root, pattern)
	}
	if !IsGlob(spec) {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory; use a glob such as %s/**/*.md", spec, spec)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", spec, err)
	}
	var files []string
	for _, m := range matches {
		if skipped(root, m) {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %q", spec)
	}
	sort.Strings(files)
	return files, nil
}

// IsGlob reports whether spec contains glob metacharacters.
func IsGlob(spec string) bool {
	return strings.ContainsAny(spec, "*?[{")
}

// SkipDir reports whether a directory with this base name is never searched.
func SkipDir(name string) bool { return skipDirs[name] }

func skipped(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

// ReadDocument reads one input file. HTML files are converted to markdown.
func ReadDocument(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("%s is larger than %d bytes", path, maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return defaultConverter.Convert(data)
	}
	return string(data), nil
}

// LoadStage reads the files behind spec into one supplied artifact. A single
// file becomes the artifact as-is; several files are concatenated, each
// under a "### <relative path>" heading, in path order.
func LoadStage(root, stageID, spec string) (store.Artifact, error) {
	files, err := Resolve(root, spec)
	if err != nil {
		return store.Artifact{}, fmt.Errorf("input %s: %w", stageID, err)
	}
	if len(files) == 1 && !IsGlob(spec) {
		content, err := ReadDocument(files[0])
		if err != nil {
			return store.Artifact{}, fmt.Errorf("input %s: %w", stageID, err)
		}
		return store.Artifact{StageID: stageID, Content: content, Source: store.Supplied}, nil
	}

	var buf strings.Builder
	for i, f := range files {
		content, err := ReadDocument(f)
		if err != nil {
			return store.Artifact{}, fmt.Errorf("input %s: %w", stageID, err)
		}
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		if i > 0 {
			buf.WriteString("\n\n")
		}
		fmt.Fprintf(&buf, "### %s\n\n%s", filepath.ToSlash(rel), strings.TrimRight(content, "\n"))
	}
	buf.WriteString("\n")
	return store.Artifact{StageID: stageID, Content: buf.String(), Source: store.Supplied}, nil
}

// Load reads every configured input. specs maps stage id to a path or glob.
func Load(root string, specs map[string]string) ([]store.Artifact, error) {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]store.Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := LoadStage(root, id, specs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseFlag splits a command-line "stage=path" override.
func ParseFlag(s string) (id, spec string, err error) {
	id, spec, ok := strings.Cut(s, "=")
	id = strings.TrimSpace(id)
	spec = strings.TrimSpace(spec)
	if !ok || id == "" || spec == "" {
		return "", "", fmt.Errorf("invalid --input %q: expected stage=path", s)
	}
	return id, spec, nil
}
