package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Attempt("prd", "rejected")
	m.Attempt("prd", "accepted")
	m.Attempt("prd", "rejected")
	m.Defect("prd", "MissingSection")
	m.StageFinished("prd", "succeeded", 3*time.Second)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("prd", "rejected")); got != 2 {
		t.Fatalf("rejected attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.defects.WithLabelValues("prd", "MissingSection")); got != 1 {
		t.Fatalf("defects = %v", got)
	}
	if got := testutil.ToFloat64(m.stageRuns.WithLabelValues("prd", "succeeded")); got != 1 {
		t.Fatalf("stage runs = %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Attempt("a", "accepted")
	m.Defect("a", "MissingField")
	m.StageFinished("a", "failed", time.Second)
	if err := m.WriteFile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Fatal(err)
	}
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.StageFinished("screens", "blocked", 0)
	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := m.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `docchain_stage_runs_total{stage="screens",status="blocked"} 1`) {
		t.Fatalf("textfile = %s", data)
	}
}
