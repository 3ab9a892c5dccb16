package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jorge-barreto/docchain/internal/assemble"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/store"
	"github.com/jorge-barreto/docchain/internal/validate"
)

// run is the mutable state of one Run. Only the loop goroutine touches it.
type run struct {
	s       *Scheduler
	ctx     context.Context
	attempt context.Context // ctx, also cancelled on a fatal error
	cancel  context.CancelFunc
	order   []string
	stages  map[string]registry.Stage
	status  map[string]string
	started map[string]time.Time
	errs    map[string]error
	rs      *state.RunState
	running int
	done    chan outcome
	log     *slog.Logger
	fatal   error
}

// seed stores the initial artifacts and computes every stage's starting
// status in topological order.
func (r *run) seed(initial []store.Artifact, rerun []string) error {
	for _, a := range initial {
		st, ok := r.stages[a.StageID]
		if !ok {
			return fmt.Errorf("initial artifact for unknown stage %q", a.StageID)
		}
		if a.Source == "" {
			a.Source = store.Supplied
		}
		if _, _, err := r.s.Store.Put(r.ctx, a); err != nil {
			return err
		}
		r.log.Debug("seeded artifact", "stage", st.ID, "source", a.Source)
	}
	forced := make(map[string]bool, len(rerun))
	for _, id := range rerun {
		st, ok := r.stages[id]
		if !ok {
			return fmt.Errorf("rerun: unknown stage %q", id)
		}
		if st.Input {
			return fmt.Errorf("rerun: %q is an input stage", id)
		}
		forced[id] = true
	}

	for _, id := range r.order {
		if r.status[id] == state.StatusBlocked {
			continue
		}
		st := r.stages[id]
		a, have := r.s.Store.Get(id)
		switch {
		case st.Input && have:
			r.set(id, state.StatusSucceeded)
			r.record(id, a)
		case st.Input && r.requiredByAny(id):
			r.fail(id, ErrInputNotSupplied, nil, 0)
		case st.Input:
			r.set(id, state.StatusUnsupplied)
		case !have || forced[id]:
			r.set(id, state.StatusPending)
		default:
			if cause := r.staleCause(a); cause != "" {
				r.set(id, state.StatusPending)
				r.progress().StageStale(st, cause)
				r.log.Info("seeded artifact is stale", "stage", id, "cause", cause)
				continue
			}
			r.set(id, state.StatusSucceeded)
			r.record(id, a)
		}
	}
	r.save()
	return nil
}

func (r *run) requiredByAny(id string) bool {
	for _, d := range r.s.Registry.Dependents(id) {
		if r.stages[d].IsRequired(id) {
			return true
		}
	}
	return false
}

// staleCause reports why an artifact's consumed inputs no longer match the
// current upstream artifacts, or "" when it is fresh. An upstream stage that
// is pending is judged later, when its new artifact lands.
func (r *run) staleCause(a *store.Artifact) string {
	for _, dep := range sortedKeys(a.Inputs) {
		switch r.status[dep] {
		case state.StatusSucceeded:
			if r.s.Store.Fingerprint(dep) != a.Inputs[dep] {
				return dep + " changed"
			}
		case state.StatusPending:
		default:
			return dep + " is " + r.status[dep]
		}
	}
	return ""
}

func (r *run) loop(opts Options) (*Result, error) {
	updates := opts.Updates
	for {
		if r.fatal == nil && r.ctx.Err() == nil {
			r.launch()
		}
		if r.fatal != nil && r.running == 0 {
			r.rs.Status = state.RunAborted
			r.finish()
			return r.result(), r.fatal
		}
		if r.ctx.Err() != nil && r.running == 0 {
			r.rs.Status = state.RunInterrupted
			r.finish()
			return r.result(), r.ctx.Err()
		}
		if r.running == 0 && !r.anyReady() {
			if opts.OnIdle != nil {
				opts.OnIdle(r.result())
			}
			if updates == nil {
				r.rs.Status = r.finalStatus()
				r.finish()
				return r.result(), nil
			}
		}

		var ctxDone <-chan struct{}
		if r.ctx.Err() == nil {
			ctxDone = r.ctx.Done()
		}
		select {
		case o := <-r.done:
			r.running--
			r.complete(o)
		case a, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			r.replace(a)
		case <-ctxDone:
			r.log.Warn("run cancelled", "running", r.running)
		}
	}
}

// launch re-derives the status of every pending or ready stage in
// topological order, then starts ready stages up to the parallelism limit.
// A ready stage whose required upstream went back to pending or running
// while it waited for a slot returns to pending.
func (r *run) launch() {
	for _, id := range r.order {
		if s := r.status[id]; s != state.StatusPending && s != state.StatusReady {
			continue
		}
		st := r.stages[id]
		ready := true
		for _, dep := range st.Required {
			switch r.status[dep] {
			case state.StatusSucceeded:
			case state.StatusFailed:
				r.block(id, dep)
				ready = false
			case state.StatusBlocked:
				r.block(id, r.rs.Stage(dep).BlockedBy)
				ready = false
			default:
				ready = false
			}
			if r.status[id] == state.StatusBlocked {
				break
			}
		}
		switch {
		case ready:
			r.set(id, state.StatusReady)
		case r.status[id] == state.StatusReady:
			r.set(id, state.StatusPending)
			r.log.Debug("ready stage lost an upstream", "stage", id)
		}
	}
	for _, id := range r.order {
		if r.running >= r.s.maxParallel() {
			return
		}
		if r.status[id] != state.StatusReady {
			continue
		}
		if err := r.start(id); err != nil {
			r.fatal = err
			r.cancel()
			r.log.Error("assembly invariant violated", "stage", id, "error", err)
			return
		}
	}
}

func (r *run) anyReady() bool {
	for _, id := range r.order {
		if r.status[id] == state.StatusReady {
			return true
		}
	}
	return false
}

// view exposes only artifacts whose stage is currently succeeded.
type view struct{ r *run }

func (v view) Get(id string) (*store.Artifact, bool) {
	if v.r.status[id] != state.StatusSucceeded {
		return nil, false
	}
	return v.r.s.Store.Get(id)
}

func (r *run) start(id string) error {
	st := r.stages[id]
	bundle, err := assemble.Build(st, r.s.Registry, view{r})
	if err != nil {
		return err
	}
	r.set(id, state.StatusRunning)
	now := time.Now()
	r.started[id] = now
	rec := r.rs.Stage(id)
	rec.StartedAt = now.UTC()
	rec.FinishedAt = time.Time{}
	rec.Error = ""
	rec.Defects = nil
	rec.BlockedBy = ""
	r.save()
	if r.s.Timing != nil {
		r.s.Timing.AddStart(id)
	}
	r.progress().StageStarted(st)
	r.log.Info("stage started", "stage", id, "context", len(bundle.Blocks))

	r.running++
	budget := r.s.budget(st)
	inputs := bundle.Inputs()
	go func() {
		out, err := r.s.Repair.Attempt(r.attempt, st, bundle, budget)
		r.done <- outcome{stage: id, result: out, err: err, inputs: inputs, finished: time.Now()}
	}()
	return nil
}

// complete applies a finished attempt loop. Results arriving after
// cancellation, or computed from inputs that changed meanwhile, are dropped.
func (r *run) complete(o outcome) {
	id := o.stage
	st := r.stages[id]
	if r.s.Timing != nil {
		r.s.Timing.AddEnd(id)
	}
	d := o.finished.Sub(r.started[id])
	rec := r.rs.Stage(id)
	rec.Attempts += o.result.Attempts
	rec.Retries = o.result.Retries()
	rec.Inputs = o.inputs

	if r.ctx.Err() != nil || r.fatal != nil {
		r.set(id, state.StatusPending)
		r.log.Info("discarding result of interrupted stage", "stage", id)
		r.save()
		return
	}
	for _, dep := range sortedKeys(o.inputs) {
		if r.status[dep] != state.StatusSucceeded || r.s.Store.Fingerprint(dep) != o.inputs[dep] {
			r.set(id, state.StatusPending)
			r.progress().StageStale(st, dep+" changed while running")
			r.log.Info("inputs changed while running; rescheduling", "stage", id, "input", dep)
			r.save()
			return
		}
	}

	if o.err != nil {
		r.fail(id, o.err, nil, d)
		return
	}
	if !o.result.Result.Accepted() {
		r.fail(id, o.result.Result.Err(id), o.result.Result.Defects(), d)
		return
	}

	a, changed, err := r.s.Store.Put(r.ctx, store.Artifact{
		StageID: id,
		Content: o.result.Result.Content(),
		Retries: o.result.Retries(),
		Source:  store.Generated,
		Inputs:  o.inputs,
	})
	if err != nil {
		r.set(id, state.StatusPending)
		r.save()
		return
	}
	r.set(id, state.StatusSucceeded)
	r.record(id, a)
	rec.FinishedAt = time.Now().UTC()
	r.s.Metrics.StageFinished(id, state.StatusSucceeded, d)
	r.progress().StageSucceeded(st, o.result.Retries(), d)
	r.log.Info("stage succeeded", "stage", id, "retries", o.result.Retries(), "changed", changed, "fingerprint", a.Fingerprint[:12])
	if r.s.Workspace != "" {
		if err := state.ExportArtifact(r.s.Workspace, st, a.Content); err != nil {
			r.log.Warn("export failed", "stage", id, "error", err)
		}
	}
	if changed {
		r.invalidate(id, a.Fingerprint)
	}
	r.save()
}

// replace stores an artifact delivered while the run is open and sends
// the stages that consumed the old one back to pending.
func (r *run) replace(a store.Artifact) {
	st, ok := r.stages[a.StageID]
	if !ok {
		r.log.Warn("ignoring update for unknown stage", "stage", a.StageID)
		return
	}
	if r.status[st.ID] == state.StatusRunning {
		r.log.Warn("ignoring update for running stage", "stage", st.ID)
		return
	}
	if a.Source == "" {
		a.Source = store.Supplied
	}
	stored, changed, err := r.s.Store.Put(r.ctx, a)
	if err != nil {
		return
	}
	was := r.status[st.ID]
	r.set(st.ID, state.StatusSucceeded)
	rec := r.rs.Stage(st.ID)
	rec.Error = ""
	rec.Defects = nil
	rec.BlockedBy = ""
	r.record(st.ID, stored)
	r.log.Info("artifact replaced", "stage", st.ID, "changed", changed, "was", was)
	if changed || was != state.StatusSucceeded {
		r.invalidate(st.ID, stored.Fingerprint)
	}
	r.save()
}

// invalidate reacts to id holding a new artifact: succeeded dependents that
// consumed a different fingerprint become pending, failed dependents get
// another chance, and stages blocked by a stage that is no longer failed are
// released. The next launch pass re-derives readiness and blocking.
func (r *run) invalidate(id, fp string) {
	for _, d := range r.s.Registry.Dependents(id) {
		rec := r.rs.Stage(d)
		switch r.status[d] {
		case state.StatusSucceeded:
			if consumed, ok := rec.Inputs[id]; ok && consumed != fp {
				r.set(d, state.StatusPending)
				r.progress().StageStale(r.stages[d], id+" changed")
				r.log.Info("stage is stale", "stage", d, "input", id)
			}
		case state.StatusFailed:
			if consumed, ok := rec.Inputs[id]; ok && consumed != fp {
				r.set(d, state.StatusPending)
				r.log.Info("retrying failed stage after input change", "stage", d, "input", id)
			}
		}
	}
	for _, b := range r.order {
		if r.status[b] != state.StatusBlocked {
			continue
		}
		if by := r.rs.Stage(b).BlockedBy; r.status[by] != state.StatusFailed {
			r.set(b, state.StatusPending)
		}
	}
}

func (r *run) fail(id string, err error, defects []validate.Defect, d time.Duration) {
	r.set(id, state.StatusFailed)
	r.errs[id] = err
	r.s.Metrics.StageFinished(id, state.StatusFailed, d)
	rec := r.rs.Stage(id)
	rec.Error = err.Error()
	rec.Defects = defects
	rec.FinishedAt = time.Now().UTC()
	r.progress().StageFailed(r.stages[id], err)
	r.log.Warn("stage failed", "stage", id, "error", err)
	for _, d := range r.s.Registry.RequiredDownstream(id) {
		if r.status[d] == state.StatusRunning {
			continue // dropped on return: its input is no longer succeeded
		}
		r.block(d, id)
	}
	r.save()
}

func (r *run) block(id, by string) {
	if r.status[id] == state.StatusBlocked {
		return
	}
	r.set(id, state.StatusBlocked)
	r.rs.Stage(id).BlockedBy = by
	r.s.Metrics.StageFinished(id, state.StatusBlocked, 0)
	r.progress().StageBlocked(r.stages[id], by)
	r.log.Info("stage blocked", "stage", id, "by", by)
}

func (r *run) set(id, status string) {
	r.status[id] = status
	r.rs.Stage(id).Status = status
}

// record copies an artifact's metadata into the stage record.
func (r *run) record(id string, a *store.Artifact) {
	rec := r.rs.Stage(id)
	rec.Content = a.Content
	rec.Fingerprint = a.Fingerprint
	rec.Generation = a.Generation
	rec.Source = string(a.Source)
	rec.ProducedAt = a.ProducedAt
	rec.Retries = a.Retries
	if a.Inputs != nil {
		rec.Inputs = a.Inputs
	}
}

func (r *run) save() {
	if r.s.Repository == nil {
		return
	}
	r.rs.UpdatedAt = time.Now().UTC()
	if err := r.s.Repository.Save(context.WithoutCancel(r.ctx), r.rs.Clone()); err != nil {
		r.log.Warn("failed to save run state", "error", err)
	}
}

func (r *run) finish() {
	r.save()
	if r.s.Timing != nil && r.s.Workspace != "" {
		if err := r.s.Timing.Flush(r.s.Workspace); err != nil {
			r.log.Warn("failed to flush timing", "error", err)
		}
	}
	r.log.Info("run finished", "status", r.rs.Status)
}

func (r *run) finalStatus() string {
	for _, id := range r.order {
		switch r.status[id] {
		case state.StatusFailed, state.StatusBlocked:
			return state.RunPartial
		}
	}
	return state.RunCompleted
}

func (r *run) result() *Result {
	res := &Result{RunID: r.rs.RunID, Status: r.rs.Status, Artifacts: make(map[string]*store.Artifact)}
	for _, id := range r.order {
		rec := r.rs.Stage(id)
		switch r.status[id] {
		case state.StatusSucceeded:
			res.Succeeded = append(res.Succeeded, id)
			if a, ok := r.s.Store.Get(id); ok {
				res.Artifacts[id] = a
			}
		case state.StatusFailed:
			err := r.errs[id]
			if err == nil {
				err = errors.New(rec.Error)
			}
			res.Failed = append(res.Failed, Failure{Stage: id, Err: err, Defects: rec.Defects})
		case state.StatusBlocked:
			res.Blocked = append(res.Blocked, Block{Stage: id, By: rec.BlockedBy})
		case state.StatusUnsupplied:
			res.Unsupplied = append(res.Unsupplied, id)
		default:
			res.Pending = append(res.Pending, id)
		}
	}
	return res
}

func (r *run) progress() Progress {
	if r.s.Progress == nil {
		return nopProgress{}
	}
	return r.s.Progress
}

type nopProgress struct{}

func (nopProgress) StageStarted(registry.Stage)                       {}
func (nopProgress) StageSucceeded(registry.Stage, int, time.Duration) {}
func (nopProgress) StageFailed(registry.Stage, error)                 {}
func (nopProgress) StageBlocked(registry.Stage, string)               {}
func (nopProgress) StageStale(registry.Stage, string)                 {}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
