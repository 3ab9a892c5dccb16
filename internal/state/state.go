// Package state persists pipeline run state and the per-attempt workspace
// files under the artifacts directory.
package state

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jorge-barreto/docchain/internal/store"
	"github.com/jorge-barreto/docchain/internal/validate"
)

// Stage statuses. Unsupplied marks an input stage nobody provided and
// nothing requires.
const (
	StatusPending    = "pending"
	StatusReady      = "ready"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusBlocked    = "blocked"
	StatusUnsupplied = "unsupplied"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunPartial     = "partial"
	RunInterrupted = "interrupted"
	RunAborted     = "aborted"
)

// ErrNoRun is returned by Repository.Load when nothing was saved yet.
var ErrNoRun = errors.New("no saved run")

// StageRecord is the persisted view of one stage.
type StageRecord struct {
	Status      string            `json:"status"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Content     string            `json:"content,omitempty"`
	Retries     int               `json:"retries"`
	Attempts    int               `json:"attempts"`
	Generation  int               `json:"generation,omitempty"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Source      string            `json:"source,omitempty"`
	Defects     []validate.Defect `json:"defects,omitempty"`
	Error       string            `json:"error,omitempty"`
	BlockedBy   string            `json:"blocked_by,omitempty"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	FinishedAt  time.Time         `json:"finished_at,omitempty"`
	ProducedAt  time.Time         `json:"produced_at,omitempty"`
}

// RunState is one pipeline run, keyed by stage id.
type RunState struct {
	RunID     string                  `json:"run_id"`
	Project   string                  `json:"project"`
	Status    string                  `json:"status"`
	StartedAt time.Time               `json:"started_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Stages    map[string]*StageRecord `json:"stages"`
}

// NewRun returns a running RunState with a fresh run id.
func NewRun(project string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		RunID:     uuid.NewString(),
		Project:   project,
		Status:    RunRunning,
		StartedAt: now,
		UpdatedAt: now,
		Stages:    make(map[string]*StageRecord),
	}
}

// Stage returns the record for id, creating a pending one if needed.
func (r *RunState) Stage(id string) *StageRecord {
	rec, ok := r.Stages[id]
	if !ok {
		rec = &StageRecord{Status: StatusPending}
		r.Stages[id] = rec
	}
	return rec
}

// IDs returns the stage ids in sorted order.
func (r *RunState) IDs() []string {
	ids := make([]string, 0, len(r.Stages))
	for id := range r.Stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *RunState) Clone() *RunState {
	cp := *r
	cp.Stages = make(map[string]*StageRecord, len(r.Stages))
	for id, rec := range r.Stages {
		c := *rec
		if rec.Inputs != nil {
			c.Inputs = make(map[string]string, len(rec.Inputs))
			for k, v := range rec.Inputs {
				c.Inputs[k] = v
			}
		}
		c.Defects = append([]validate.Defect(nil), rec.Defects...)
		cp.Stages[id] = &c
	}
	return &cp
}

// Artifacts returns the succeeded records as artifacts, ready to seed the
// next run. Consumed-input fingerprints are carried so the scheduler can
// tell which of them went stale.
func (r *RunState) Artifacts() []store.Artifact {
	var out []store.Artifact
	for _, id := range r.IDs() {
		rec := r.Stages[id]
		if rec.Status != StatusSucceeded {
			continue
		}
		out = append(out, store.Artifact{
			StageID:     id,
			Content:     rec.Content,
			Fingerprint: rec.Fingerprint,
			ProducedAt:  rec.ProducedAt,
			Retries:     rec.Retries,
			Source:      store.Source(rec.Source),
			Inputs:      rec.Inputs,
		})
	}
	return out
}

// Repository stores the latest run.
type Repository interface {
	Load(ctx context.Context) (*RunState, error)
	Save(ctx context.Context, run *RunState) error
	Close() error
}
