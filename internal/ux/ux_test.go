package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/scheduler"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/validate"
)

var _ scheduler.Progress = (*Console)(nil)

func fixedConsole(buf *bytes.Buffer) *Console {
	c := NewConsole(buf)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 9, 30, 5, 0, time.Local) }
	return c
}

func TestConsole_StageLines(t *testing.T) {
	var buf bytes.Buffer
	c := fixedConsole(&buf)
	prd, _ := registry.Default().Stage(registry.PRD)

	c.StageStarted(prd)
	c.StageSucceeded(prd, 2, 75*time.Second)
	c.StageFailed(prd, errors.New("exit code 1: boom\nstack"))
	c.StageBlocked(prd, "source-documents")
	c.StageStale(prd, "source-documents changed")

	out := buf.String()
	for _, want := range []string{
		"[09:30:05]",
		"▶ prd (structured-markdown)",
		"✓ prd complete (1m 15s, 2 retries)",
		"✗ prd failed: exit code 1: boom …",
		"– prd blocked by source-documents",
		"↺ prd is stale (source-documents changed)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stack") {
		t.Error("only the first line of an error is printed")
	}
}

func TestConsole_SingleRetry(t *testing.T) {
	var buf bytes.Buffer
	c := fixedConsole(&buf)
	c.StageSucceeded(registry.Stage{ID: "screens"}, 1, time.Second)
	c.StageSucceeded(registry.Stage{ID: "prd"}, 0, time.Second)
	out := buf.String()
	if !strings.Contains(out, "screens complete (0m 01s, 1 retry)") || !strings.Contains(out, "prd complete (0m 01s)") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRenderStatus(t *testing.T) {
	reg := registry.Default()
	run := state.NewRun("shop")
	run.Status = state.RunPartial
	src := run.Stage(registry.SourceDocuments)
	src.Status = state.StatusSucceeded
	src.Source = "supplied"
	prd := run.Stage(registry.PRD)
	prd.Status = state.StatusFailed
	prd.Attempts = 2
	prd.Defects = []validate.Defect{{Rule: validate.MissingSection, Subject: "## EPIC:"}}
	scr := run.Stage(registry.Screens)
	scr.Status = state.StatusBlocked
	scr.BlockedBy = registry.PRD

	var buf bytes.Buffer
	RenderStatus(&buf, reg, run, nil)
	out := buf.String()
	for _, want := range []string{"shop", run.RunID, "source-documents", "supplied", "1 defect(s): MissingSection:## EPIC:", "blocked by prd", "implementation-plan"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestRenderGraph(t *testing.T) {
	reg, err := registry.New([]registry.Stage{
		{ID: "r", Title: "R", Input: true},
		{ID: "a", Title: "A", Required: []string{"r"}, Contract: registry.Contract{Kind: registry.StructuredMarkdown}},
		{ID: "b", Title: "B", Required: []string{"a"}, Optional: []string{"r"}, Contract: registry.Contract{Kind: registry.StructuredMarkdown}},
	})
	if err != nil {
		t.Fatal(err)
	}
	waves, err := scheduler.Plan(reg)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	RenderGraph(&buf, reg, waves)
	out := buf.String()
	if !strings.Contains(out, "a, r?") || !strings.Contains(out, "input") {
		t.Fatalf("graph:\n%s", out)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	got := truncate(strings.Repeat("ß", 70), 60)
	if !strings.HasSuffix(got, "ß...") || len([]rune(got)) != 60 {
		t.Fatalf("truncate = %q", got)
	}
	if !strings.Contains(got, "ß") || strings.ContainsRune(got, '\uFFFD') {
		t.Fatalf("truncate split a character: %q", got)
	}
}
