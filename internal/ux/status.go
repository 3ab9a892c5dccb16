package ux

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/store"
)

func kindLabel(st registry.Stage) string {
	if st.Input {
		return "input"
	}
	return string(st.Contract.Kind)
}

func statusLabel(status string) string {
	switch status {
	case state.StatusSucceeded:
		return Green + status + Reset
	case state.StatusFailed:
		return Red + status + Reset
	case state.StatusBlocked, state.StatusUnsupplied:
		return Dim + status + Reset
	case state.StatusRunning, state.StatusReady:
		return Yellow + status + Reset
	}
	return status
}

// detail summarizes why a stage is where it is.
func detail(rec *state.StageRecord) string {
	switch rec.Status {
	case state.StatusBlocked:
		return "blocked by " + rec.BlockedBy
	case state.StatusFailed:
		msg := firstLine(rec.Error)
		if n := len(rec.Defects); n > 0 {
			msg = fmt.Sprintf("%d defect(s): %s", n, rec.Defects[0])
		}
		return truncate(msg, 60)
	case state.StatusSucceeded:
		if rec.Source == string(store.Supplied) {
			return "supplied"
		}
		if len(rec.Fingerprint) >= 12 {
			return rec.Fingerprint[:12]
		}
	}
	return ""
}

// truncate shortens s to at most n runes, never splitting a character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// RenderStatus prints the per-stage table of a run.
func RenderStatus(w io.Writer, reg *registry.Registry, run *state.RunState, timing *state.Timing) {
	fmt.Fprintf(w, "%sProject:%s %s\n", Bold, Reset, run.Project)
	fmt.Fprintf(w, "%sRun:%s     %s  %s\n", Bold, Reset, run.RunID, statusLabel(run.Status))
	fmt.Fprintf(w, "%sUpdated:%s %s\n\n", Bold, Reset, run.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Stage", "Kind", "Status", "Attempts", "Time", "Detail"})
	order, err := reg.Order()
	if err != nil {
		order = nil
		for _, st := range reg.Stages() {
			order = append(order, st.ID)
		}
	}
	for _, id := range order {
		st, _ := reg.Stage(id)
		rec, ok := run.Stages[id]
		if !ok {
			rec = &state.StageRecord{Status: state.StatusPending}
		}
		dur := ""
		if timing != nil {
			if d := timing.Total(id); d > 0 {
				dur = state.FormatDuration(d)
			}
		}
		attempts := ""
		if rec.Attempts > 0 {
			attempts = fmt.Sprint(rec.Attempts)
		}
		tw.AppendRow(table.Row{id, kindLabel(st), statusLabel(rec.Status), attempts, dur, detail(rec)})
	}
	tw.Render()
}

// RenderGraph prints the stage waves with each stage's upstream stages.
// Optional upstream stages are marked with "?".
func RenderGraph(w io.Writer, reg *registry.Registry, waves [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Wave", "Stage", "Kind", "Upstream"})
	for i, wave := range waves {
		for _, id := range wave {
			st, _ := reg.Stage(id)
			deps := append([]string(nil), st.Required...)
			for _, o := range st.Optional {
				deps = append(deps, o+"?")
			}
			tw.AppendRow(table.Row{i + 1, id, kindLabel(st), strings.Join(deps, ", ")})
		}
		if i < len(waves)-1 {
			tw.AppendSeparator()
		}
	}
	tw.Render()
}
