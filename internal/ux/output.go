package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Console prints timestamped progress lines. It implements
// scheduler.Progress.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out, now: time.Now}
}

func (c *Console) line(color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s[%s]%s  %s%s%s\n",
		Dim, c.now().Format("15:04:05"), Reset, color, fmt.Sprintf(format, args...), Reset)
}

// RunHeader prints the banner that opens a run.
func (c *Console) RunHeader(project, runID string, stages int) {
	c.mu.Lock()
	ts := c.now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n%s[%s]%s %s══════════════════════════════════════%s\n", Dim, ts, Reset, Cyan, Reset)
	fmt.Fprintf(c.out, "%s[%s]%s  %s%s: %d stages (run %s)%s\n", Dim, ts, Reset, Bold, project, stages, shortID(runID), Reset)
	fmt.Fprintf(c.out, "%s[%s]%s %s══════════════════════════════════════%s\n", Dim, ts, Reset, Cyan, Reset)
	c.mu.Unlock()
}

func (c *Console) StageStarted(stage registry.Stage) {
	c.line(Cyan, "▶ %s (%s)", stage.ID, stage.Contract.Kind)
}

func (c *Console) StageSucceeded(stage registry.Stage, retries int, d time.Duration) {
	suffix := ""
	if retries == 1 {
		suffix = ", 1 retry"
	} else if retries > 1 {
		suffix = fmt.Sprintf(", %d retries", retries)
	}
	c.line(Green, "✓ %s complete (%s%s)", stage.ID, state.FormatDuration(d), suffix)
}

func (c *Console) StageFailed(stage registry.Stage, err error) {
	c.line(Red, "✗ %s failed: %s", stage.ID, firstLine(err.Error()))
}

func (c *Console) StageBlocked(stage registry.Stage, by string) {
	c.line(Dim, "– %s blocked by %s", stage.ID, by)
}

func (c *Console) StageStale(stage registry.Stage, cause string) {
	c.line(Yellow, "↺ %s is stale (%s)", stage.ID, cause)
}

// Watching prints the idle message of a watch-mode run.
func (c *Console) Watching(inputs int) {
	c.line(Dim, "watching %d input(s) for changes; Ctrl-C to stop", inputs)
}

// ResumeHint prints how to continue after a partial run.
func (c *Console) ResumeHint() {
	c.mu.Lock()
	fmt.Fprintf(c.out, "\n%sResume:%s docchain run   %s(failed stages retry; succeeded ones are reused)%s\n", Yellow, Reset, Dim, Reset)
	c.mu.Unlock()
}

// Success prints the final success message.
func (c *Console) Success(total int) {
	c.mu.Lock()
	fmt.Fprintf(c.out, "\n%s[%s]%s  %s%s══ All %d stages complete ══%s\n\n",
		Dim, c.now().Format("15:04:05"), Reset, Bold, Green, total, Reset)
	c.mu.Unlock()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
