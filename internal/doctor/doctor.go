// Package doctor asks the generation backend to diagnose a failed stage.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jorge-barreto/docchain/internal/config"
	"github.com/jorge-barreto/docchain/internal/invoke"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/ux"
)

const maxLogLines = 200

const diagPrompt = `You are diagnosing a failed docchain stage. Analyze the context below and provide a concise diagnosis.

## Failed Stage
%s

## Failure
%s

## Invoker Log (last %d lines)
%s
%s%s%s
Instructions:
1. Identify what went wrong.
2. Classify this as a CONTRACT problem (the output keeps missing required structure), a CONTEXT problem (an upstream artifact is wrong or incomplete), or a BACKEND problem (the generator crashed, timed out or is misconfigured).
3. Suggest specific fixes: prompt changes, retry budget, model, timeout, or which upstream stage to regenerate.
4. Recommend the next command to run:
   - docchain run                       (retry failed stages, reuse everything else)
   - docchain run --rerun <stage>       (regenerate an upstream stage)
   - docchain validate <stage> <file>   (check a hand-edited output)

Be direct and concise. Focus on actionable advice.`

// diagnosisStage names the synthetic stage the diagnosis request runs as.
var diagnosisStage = registry.Stage{ID: "doctor", Title: "Diagnosis"}

// Target picks the stage to diagnose: want if set, else the first failed
// stage in topological order.
func Target(reg *registry.Registry, run *state.RunState, want string) (registry.Stage, error) {
	if want != "" {
		st, ok := reg.Stage(want)
		if !ok {
			return registry.Stage{}, fmt.Errorf("unknown stage %q", want)
		}
		return st, nil
	}
	order, err := reg.Order()
	if err != nil {
		return registry.Stage{}, err
	}
	for _, id := range order {
		if rec, ok := run.Stages[id]; ok && rec.Status == state.StatusFailed {
			st, _ := reg.Stage(id)
			return st, nil
		}
	}
	return registry.Stage{}, nil
}

// Run gathers the failure context of one stage and prints the backend's
// diagnosis to out.
func Run(ctx context.Context, out io.Writer, artifactsDir string, cfg *config.Config, reg *registry.Registry, run *state.RunState, stageID string, inv invoke.Invoker) error {
	st, err := Target(reg, run, stageID)
	if err != nil {
		return err
	}
	if st.ID == "" {
		fmt.Fprintln(out, "No failed stage to diagnose.")
		return nil
	}
	rec := run.Stages[st.ID]
	if rec == nil {
		rec = &state.StageRecord{Status: state.StatusPending}
	}

	diagText := buildPrompt(
		gatherStageConfig(st, cfg),
		gatherFailure(rec),
		gatherLog(artifactsDir, st.ID),
		gatherAttempt(artifactsDir, st.ID),
		gatherFeedback(artifactsDir, st.ID),
		gatherTiming(artifactsDir, st.ID),
	)

	fmt.Fprintf(out, "\n%s%s══ Doctor: diagnosing %s (%s) ══%s\n\n", ux.Bold, ux.Cyan, st.ID, rec.Status, ux.Reset)
	text, err := inv.Invoke(ctx, invoke.Request{Stage: diagnosisStage, Prompt: diagText, Model: cfg.Invoker.Model, Attempt: 1})
	if err != nil {
		return fmt.Errorf("diagnosis failed: %w", err)
	}
	fmt.Fprintln(out, strings.TrimSpace(text))
	return nil
}

func buildPrompt(stageConfig, failure, log, attempt, feedback, timing string) string {
	var attemptSection, feedbackSection, timingSection string
	if attempt != "" {
		attemptSection = fmt.Sprintf("\n## Last Attempt\n%s\n", attempt)
	}
	if feedback != "" {
		feedbackSection = fmt.Sprintf("\n## Validation Feedback\n%s\n", feedback)
	}
	if timing != "" {
		timingSection = fmt.Sprintf("\n## Execution Context\nTiming: %s\n", timing)
	}
	return fmt.Sprintf(diagPrompt, stageConfig, failure, maxLogLines, log, attemptSection, feedbackSection, timingSection)
}

func gatherStageConfig(st registry.Stage, cfg *config.Config) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Stage: %s (%s)", st.ID, st.Title))
	parts = append(parts, fmt.Sprintf("Contract: %s", st.Contract.Kind))
	if len(st.Required) > 0 {
		parts = append(parts, fmt.Sprintf("Required upstream: %s", strings.Join(st.Required, ", ")))
	}
	if len(st.Optional) > 0 {
		parts = append(parts, fmt.Sprintf("Optional upstream: %s", strings.Join(st.Optional, ", ")))
	}
	if cfg != nil {
		parts = append(parts, fmt.Sprintf("Invoker: %s", cfg.Invoker.Type))
		parts = append(parts, fmt.Sprintf("Model: %s", cfg.Model(st.ID)))
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout(st.ID)))
		parts = append(parts, fmt.Sprintf("Retry budget: %d", cfg.Budget(st.ID, st.Contract.Kind)))
		if sc, ok := cfg.Stages[st.ID]; ok && sc.Prompt != "" {
			parts = append(parts, fmt.Sprintf("Prompt file: %s", sc.Prompt))
		}
	}
	return strings.Join(parts, "\n")
}

func gatherFailure(rec *state.StageRecord) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Status: %s", rec.Status))
	if rec.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("Attempts: %d", rec.Attempts))
	}
	if rec.Error != "" {
		parts = append(parts, fmt.Sprintf("Error: %s", rec.Error))
	}
	if rec.BlockedBy != "" {
		parts = append(parts, fmt.Sprintf("Blocked by: %s", rec.BlockedBy))
	}
	for _, d := range rec.Defects {
		parts = append(parts, fmt.Sprintf("- %s", d))
	}
	return strings.Join(parts, "\n")
}

func tailLines(data string, n int) string {
	lines := strings.Split(data, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
		return fmt.Sprintf("... (truncated to last %d lines)\n%s", n, strings.Join(lines, "\n"))
	}
	return data
}

func gatherLog(artifactsDir, stageID string) string {
	data, err := os.ReadFile(filepath.Join(state.LogDir(artifactsDir), stageID+".log"))
	if err != nil {
		return "(no log file found)"
	}
	return tailLines(string(data), maxLogLines)
}

// lastAttempt returns the highest attempt number with a saved prompt.
func lastAttempt(artifactsDir, stageID string) int {
	entries, err := os.ReadDir(filepath.Join(artifactsDir, "prompts"))
	if err != nil {
		return 0
	}
	last := 0
	prefix := stageID + "-"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".md") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".md"))
		if err == nil && n > last {
			last = n
		}
	}
	return last
}

func gatherAttempt(artifactsDir, stageID string) string {
	n := lastAttempt(artifactsDir, stageID)
	if n == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %d\n", n)
	if data, err := os.ReadFile(state.OutputPath(artifactsDir, stageID, n)); err == nil {
		fmt.Fprintf(&b, "\n### Raw output\n%s\n", tailLines(string(data), maxLogLines))
	} else {
		b.WriteString("\n(no output recorded)\n")
	}
	return b.String()
}

func gatherFeedback(artifactsDir, stageID string) string {
	data, err := os.ReadFile(state.FeedbackPath(artifactsDir, stageID))
	if err != nil {
		return ""
	}
	return string(data)
}

func gatherTiming(artifactsDir, stageID string) string {
	timing, err := state.LoadTiming(artifactsDir)
	if err != nil {
		return ""
	}
	var parts []string
	for _, e := range timing.Entries {
		if e.Stage != stageID {
			continue
		}
		if e.Duration != "" {
			parts = append(parts, fmt.Sprintf("started %s, duration %s", e.Start.Format("15:04:05"), e.Duration))
		} else {
			parts = append(parts, fmt.Sprintf("started %s (did not complete)", e.Start.Format("15:04:05")))
		}
	}
	return strings.Join(parts, "; ")
}
