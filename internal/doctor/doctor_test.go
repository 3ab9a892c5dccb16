package doctor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jorge-barreto/docchain/internal/config"
	"github.com/jorge-barreto/docchain/internal/invoke"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/validate"
)

type mockInvoker struct {
	mu       sync.Mutex
	requests []invoke.Request
	reply    string
	err      error
}

func (m *mockInvoker) Invoke(ctx context.Context, req invoke.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.reply, m.err
}

func testConfig() *config.Config {
	one := 1
	return &config.Config{
		Name:    "shop",
		Invoker: config.Invoker{Type: config.InvokerClaude, Model: "sonnet", Timeout: 30},
		Retries: config.Retries{StructuredMarkdown: &one},
		Stages:  map[string]config.StageConfig{registry.PRD: {Prompt: "prompts/prd.md", Model: "opus"}},
	}
}

func failedRun() *state.RunState {
	run := state.NewRun("shop")
	run.Stage(registry.SourceDocuments).Status = state.StatusSucceeded
	prd := run.Stage(registry.PRD)
	prd.Status = state.StatusFailed
	prd.Attempts = 2
	prd.Error = "prd: contract violated"
	prd.Defects = []validate.Defect{{Rule: validate.MissingSection, Subject: "#### TASK:"}}
	run.Stage(registry.Screens).Status = state.StatusBlocked
	run.Stage(registry.Screens).BlockedBy = registry.PRD
	return run
}

func TestTarget(t *testing.T) {
	reg := registry.Default()
	run := failedRun()

	st, err := Target(reg, run, "")
	if err != nil || st.ID != registry.PRD {
		t.Fatalf("Target = %q, %v", st.ID, err)
	}
	st, err = Target(reg, run, registry.Screens)
	if err != nil || st.ID != registry.Screens {
		t.Fatalf("explicit Target = %q, %v", st.ID, err)
	}
	if _, err := Target(reg, run, "nope"); err == nil {
		t.Fatal("expected unknown stage error")
	}
	st, err = Target(reg, state.NewRun("shop"), "")
	if err != nil || st.ID != "" {
		t.Fatalf("clean run Target = %q, %v", st.ID, err)
	}
}

func TestGatherLog_Short(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(state.LogDir(dir), 0755)
	os.WriteFile(filepath.Join(state.LogDir(dir), "prd.log"), []byte("line 1\nline 2\nline 3"), 0644)

	result := gatherLog(dir, "prd")
	if result != "line 1\nline 2\nline 3" {
		t.Errorf("expected full content, got %q", result)
	}
}

func TestGatherLog_Long(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(state.LogDir(dir), 0755)
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "log line")
	}
	os.WriteFile(filepath.Join(state.LogDir(dir), "prd.log"), []byte(strings.Join(lines, "\n")), 0644)

	result := gatherLog(dir, "prd")
	if !strings.HasPrefix(result, "... (truncated to last 200 lines)") {
		t.Errorf("expected truncation prefix, got %q", result[:60])
	}
	if n := len(strings.Split(result, "\n")); n != 201 {
		t.Errorf("expected 201 lines, got %d", n)
	}
}

func TestGatherLog_Missing(t *testing.T) {
	if result := gatherLog(t.TempDir(), "prd"); result != "(no log file found)" {
		t.Errorf("expected missing placeholder, got %q", result)
	}
}

func TestGatherStageConfig(t *testing.T) {
	st, _ := registry.Default().Stage(registry.PRD)
	result := gatherStageConfig(st, testConfig())
	for _, want := range []string{
		"Stage: prd (Product Requirements Document)",
		"Contract: structured-markdown",
		"Required upstream: source-documents",
		"Model: opus",
		"Timeout: 30m0s",
		"Retry budget: 1",
		"Prompt file: prompts/prd.md",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q in:\n%s", want, result)
		}
	}
}

func TestGatherFailure(t *testing.T) {
	result := gatherFailure(failedRun().Stages[registry.PRD])
	for _, want := range []string{"Status: failed", "Attempts: 2", "Error: prd: contract violated", "- MissingSection:#### TASK:"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q in:\n%s", want, result)
		}
	}
}

func TestGatherAttempt_UsesLatest(t *testing.T) {
	dir := t.TempDir()
	state.EnsureDir(dir)
	for n, out := range map[int]string{1: "first try", 2: "second try", 10: "tenth try"} {
		os.WriteFile(state.PromptPath(dir, "prd", n), []byte("prompt"), 0644)
		os.WriteFile(state.OutputPath(dir, "prd", n), []byte(out), 0644)
	}
	os.WriteFile(state.PromptPath(dir, "prd-extra", 99), []byte("other stage"), 0644)

	result := gatherAttempt(dir, "prd")
	if !strings.HasPrefix(result, "Attempt 10\n") || !strings.Contains(result, "tenth try") {
		t.Fatalf("got %q", result)
	}
	if gatherAttempt(dir, "screens") != "" {
		t.Fatal("expected empty section for a stage without attempts")
	}
}

func TestGatherFeedback(t *testing.T) {
	dir := t.TempDir()
	state.EnsureDir(dir)
	state.WriteFeedback(dir, "prd", "- MissingSection: #### TASK:")
	if got := gatherFeedback(dir, "prd"); got != "- MissingSection: #### TASK:" {
		t.Fatalf("got %q", got)
	}
	if got := gatherFeedback(dir, "screens"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestBuildPrompt_OptionalSections(t *testing.T) {
	p := buildPrompt("Stage: prd", "Status: failed", "log", "", "", "")
	if strings.Contains(p, "## Last Attempt") || strings.Contains(p, "## Validation Feedback") || strings.Contains(p, "## Execution Context") {
		t.Fatalf("empty sections rendered:\n%s", p)
	}
	p = buildPrompt("Stage: prd", "Status: failed", "log", "Attempt 2", "defects", "started 10:00:00")
	for _, want := range []string{"## Last Attempt\nAttempt 2", "## Validation Feedback\ndefects", "Timing: started 10:00:00"} {
		if !strings.Contains(p, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestRun_SendsDiagnosisToInvoker(t *testing.T) {
	dir := t.TempDir()
	state.EnsureDir(dir)
	inv := &mockInvoker{reply: "  Add the missing TASK headings.\n"}
	var out bytes.Buffer

	err := Run(context.Background(), &out, dir, testConfig(), registry.Default(), failedRun(), "", inv)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(inv.requests))
	}
	req := inv.requests[0]
	if req.Stage.ID != "doctor" || req.Model != "sonnet" || !strings.Contains(req.Prompt, "Stage: prd") {
		t.Fatalf("request = %+v", req)
	}
	if !strings.Contains(out.String(), "Doctor: diagnosing prd (failed)") || !strings.Contains(out.String(), "Add the missing TASK headings.\n") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRun_NothingToDiagnose(t *testing.T) {
	inv := &mockInvoker{}
	var out bytes.Buffer
	if err := Run(context.Background(), &out, t.TempDir(), testConfig(), registry.Default(), state.NewRun("shop"), "", inv); err != nil {
		t.Fatal(err)
	}
	if len(inv.requests) != 0 || !strings.Contains(out.String(), "No failed stage") {
		t.Fatalf("requests=%d output=%q", len(inv.requests), out.String())
	}
}

func TestRun_InvokerError(t *testing.T) {
	inv := &mockInvoker{err: errors.New("claude not found")}
	var out bytes.Buffer
	err := Run(context.Background(), &out, t.TempDir(), testConfig(), registry.Default(), failedRun(), "", inv)
	if err == nil || !strings.Contains(err.Error(), "claude not found") {
		t.Fatalf("expected wrapped invoker error, got %v", err)
	}
}
