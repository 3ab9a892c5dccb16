package state

import (
	"testing"
	"time"
)

func TestTiming_InterleavedStages(t *testing.T) {
	dir := t.TempDir()
	tm := &Timing{}
	tm.AddStart("screens")
	tm.AddStart("design-system")
	tm.AddEnd("screens")
	tm.AddEnd("design-system")
	if err := tm.Flush(dir); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadTiming(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("entries = %d", len(loaded.Entries))
	}
	for _, e := range loaded.Entries {
		if e.End.IsZero() || e.Duration == "" {
			t.Fatalf("entry not closed: %+v", e)
		}
	}
	if tm.Total("screens") < 0 {
		t.Fatal("negative total")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(125 * time.Second); got != "2m 05s" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadTiming_Missing(t *testing.T) {
	tm, err := LoadTiming(t.TempDir())
	if err != nil || len(tm.Entries) != 0 {
		t.Fatalf("tm = %+v, err = %v", tm, err)
	}
}
