// Package scaffold implements `docchain init`.
package scaffold

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jorge-barreto/docchain/internal/config"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/ux"
)

const configTemplate = `name: my-project
%s
invoker:
  type: claude        # or: command (with run: "<shell command reading the prompt on stdin>")
  model: sonnet
  timeout: 30         # minutes per attempt

max-parallel: 2

retries:
  structured-markdown: 1
  strict-json: 2

inputs:
  source-documents: inputs/source/**/*.md
  tech-stack: inputs/tech-stack.md
  plan-config: inputs/plan-config.md
  # design-template: inputs/design-template.html
  # guidelines: inputs/guidelines.md

stages:
  prd:
    prompt: .docchain/prompts/prd.md

state:
  backend: file       # or: sqlite

vars:
  AUDIENCE: the engineering team
`

const prdPrompt = `You are a senior product manager. Read the source documents for $STAGE_TITLE
and write a complete product requirements document for $AUDIENCE.

Break the product into epics, each epic into user stories and each story into
concrete tasks. Do not invent features the source documents do not support.
`

const briefTemplate = `# Product Brief

Describe the product here: who it is for, the problem it solves and the
features it must have. Add more markdown files next to this one; every file
under inputs/source/ is part of the source documents.
`

const techStackTemplate = `# Technology Stack

- Frontend:
- Backend:
- Database:
- Hosting:
`

const planConfigTemplate = `# Plan Configuration

- Target consumer: an AI coding agent
- Delivery strategy: vertical slices, one phase per epic
- Include scaffold: yes
`

type Options struct {
	// EjectRegistry writes the built-in stage chain to
	// .docchain/registry.yaml and points the config at it.
	EjectRegistry bool
}

// Init creates .docchain/ with an example config, a prompt override and
// starter input files.
func Init(targetDir string, out io.Writer, opts Options) error {
	dir := filepath.Join(targetDir, config.Dir)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%s directory already exists in %s", config.Dir, targetDir)
	}

	registryLine := ""
	files := map[string]string{
		filepath.Join(config.Dir, "prompts", "prd.md"): prdPrompt,
		filepath.Join(config.Dir, ".gitignore"):        "artifacts/\n",
		filepath.Join("inputs", "source", "brief.md"):  briefTemplate,
		filepath.Join("inputs", "tech-stack.md"):       techStackTemplate,
		filepath.Join("inputs", "plan-config.md"):      planConfigTemplate,
	}
	if opts.EjectRegistry {
		data, err := registry.Marshal(registry.DefaultStages())
		if err != nil {
			return fmt.Errorf("rendering registry: %w", err)
		}
		rel := filepath.Join(config.Dir, "registry.yaml")
		files[rel] = string(data)
		registryLine = "registry: " + filepath.ToSlash(rel) + "\n"
	}
	files[filepath.Join(config.Dir, "config.yaml")] = fmt.Sprintf(configTemplate, registryLine)

	written, err := writeFiles(targetDir, files)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s%s✓ Initialized %s/ directory%s\n\n", ux.Bold, ux.Green, config.Dir, ux.Reset)
	fmt.Fprintf(out, "  Created:\n")
	for _, p := range written {
		fmt.Fprintf(out, "    %s%s%s\n", ux.Cyan, filepath.ToSlash(p), ux.Reset)
	}
	fmt.Fprintf(out, "\n  Next steps:\n")
	fmt.Fprintf(out, "    1. Describe your product in %sinputs/%s\n", ux.Cyan, ux.Reset)
	fmt.Fprintf(out, "    2. Review %s%s/config.yaml%s\n", ux.Cyan, config.Dir, ux.Reset)
	fmt.Fprintf(out, "    3. Run %sdocchain run --dry-run%s to preview\n\n", ux.Cyan, ux.Reset)
	return nil
}

// writeFiles writes files (relative path -> content) under root and
// returns the written paths sorted.
func writeFiles(root string, files map[string]string) ([]string, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, rel := range paths {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", rel, err)
		}
		if _, err := os.Stat(full); err == nil {
			continue // keep inputs the user already wrote
		}
		if err := os.WriteFile(full, []byte(files[rel]), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return paths, nil
}
