// Package scheduler walks the stage graph: it launches every stage whose
// required upstream stages have succeeded, runs independent stages
// concurrently, blocks the dependents of failed stages, and sends stages
// whose consumed inputs changed back to pending.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jorge-barreto/docchain/internal/metrics"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/repair"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/store"
	"github.com/jorge-barreto/docchain/internal/validate"
)

// ErrInputNotSupplied is recorded for a required input stage nobody provided.
var ErrInputNotSupplied = errors.New("input not supplied")

// Progress receives stage transitions for display. Calls come from the
// scheduler goroutine, one at a time.
type Progress interface {
	StageStarted(stage registry.Stage)
	StageSucceeded(stage registry.Stage, retries int, d time.Duration)
	StageFailed(stage registry.Stage, err error)
	StageBlocked(stage registry.Stage, by string)
	StageStale(stage registry.Stage, cause string)
}

type Scheduler struct {
	Registry *registry.Registry
	Store    *store.Store
	Repair   *repair.Controller

	// Budget returns a stage's retry budget. Nil uses repair.DefaultBudget.
	Budget      func(stage registry.Stage) int
	MaxParallel int // defaults to 1

	// State is the run being driven. Nil starts a fresh one.
	State      *state.RunState
	Repository state.Repository // optional; saved after every transition

	// Workspace, when set, receives exported artifacts and timing.json.
	Workspace string
	Timing    *state.Timing

	Progress Progress
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Options tune one Run.
type Options struct {
	// Rerun forces these generated stages to run again even when their
	// seeded artifact is fresh.
	Rerun []string

	// Updates delivers replacement artifacts while the run is open. When
	// set, Run does not return on going idle; it waits for the next update
	// until the channel is closed or ctx is done.
	Updates <-chan store.Artifact

	// OnIdle is called each time no stage is running or ready.
	OnIdle func(*Result)
}

// Failure is a stage that ended failed.
type Failure struct {
	Stage   string
	Err     error
	Defects []validate.Defect
}

// Block is a stage that will not run because a required ancestor failed.
type Block struct {
	Stage string
	By    string // the failed ancestor
}

// Result is the per-stage report of a run.
type Result struct {
	RunID      string
	Status     string
	Succeeded  []string
	Failed     []Failure
	Blocked    []Block
	Unsupplied []string
	Pending    []string // only when interrupted
	Artifacts  map[string]*store.Artifact
}

// OK reports whether every stage that could run succeeded.
func (r *Result) OK() bool {
	return len(r.Failed) == 0 && len(r.Blocked) == 0 && len(r.Pending) == 0
}

type outcome struct {
	stage    string
	result   repair.Outcome
	err      error
	inputs   map[string]string
	finished time.Time
}

// Run executes the pipeline. A cyclic graph fails with the cycle error
// before anything runs, and an assembly invariant violation aborts the run.
// Every other failure stays local to its stage and its dependents and is
// reported in the Result. If ctx is cancelled, in-flight attempts are
// abandoned, nothing they produce is stored, and ctx.Err() is returned along
// with the partial Result.
func (s *Scheduler) Run(ctx context.Context, initial []store.Artifact, opts Options) (*Result, error) {
	order, err := s.Registry.Order()
	if err != nil {
		return nil, err
	}
	r := &run{
		s:       s,
		ctx:     ctx,
		order:   order,
		stages:  make(map[string]registry.Stage, len(order)),
		status:  make(map[string]string, len(order)),
		started: make(map[string]time.Time),
		errs:    make(map[string]error),
		done:    make(chan outcome),
		log:     s.logger(),
	}
	for _, st := range s.Registry.Stages() {
		r.stages[st.ID] = st
	}
	r.attempt, r.cancel = context.WithCancel(ctx)
	defer r.cancel()
	r.rs = s.State
	if r.rs == nil {
		r.rs = state.NewRun("")
	}
	r.rs.Status = state.RunRunning
	r.log = r.log.With("run", r.rs.RunID)

	if err := r.seed(initial, opts.Rerun); err != nil {
		return nil, err
	}
	return r.loop(opts)
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Scheduler) maxParallel() int {
	if s.MaxParallel < 1 {
		return 1
	}
	return s.MaxParallel
}

func (s *Scheduler) budget(st registry.Stage) int {
	if s.Budget == nil {
		return repair.DefaultBudget(st.Contract.Kind)
	}
	return s.Budget(st)
}
