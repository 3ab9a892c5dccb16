// Package store is the process-wide artifact map. Each stage id owns a slot
// with its own lock; readers load an immutable *Artifact and never observe a
// partial replacement.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Source records where an artifact came from.
type Source string

const (
	Generated Source = "generated"
	Supplied  Source = "supplied"
)

// Artifact is the accepted output of one stage. Values handed out by the
// Store are shared and must be treated as read-only.
type Artifact struct {
	StageID     string            `json:"stage_id"`
	Content     string            `json:"content"`
	Fingerprint string            `json:"fingerprint"`
	ProducedAt  time.Time         `json:"produced_at"`
	Retries     int               `json:"retries"`
	Generation  int               `json:"generation"`
	Source      Source            `json:"source"`
	Inputs      map[string]string `json:"inputs,omitempty"` // upstream id -> fingerprint consumed
}

// Fingerprint returns the content address of raw artifact text.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type slot struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Artifact]
	gen int
}

// Store maps stage ids to their current artifact.
type Store struct {
	mu    sync.Mutex // guards the slots map only
	slots map[string]*slot
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for ProducedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{slots: make(map[string]*slot), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) slot(id string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{}
		s.slots[id] = sl
	}
	return sl
}

func (s *Store) lookupSlot(id string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id]
}

// Get returns the current artifact for id.
func (s *Store) Get(id string) (*Artifact, bool) {
	sl := s.lookupSlot(id)
	if sl == nil {
		return nil, false
	}
	a := sl.cur.Load()
	return a, a != nil
}

// Fingerprint returns the fingerprint of id's current artifact, or "".
func (s *Store) Fingerprint(id string) string {
	if a, ok := s.Get(id); ok {
		return a.Fingerprint
	}
	return ""
}

// Put stores a as the artifact for a.StageID and reports whether its content
// changed. Writing an identical artifact is a no-op; rewriting the same
// content with new consumed inputs keeps the generation.
// If ctx is already cancelled when the slot lock is held, nothing is
// written and ctx.Err() is returned.
func (s *Store) Put(ctx context.Context, a Artifact) (*Artifact, bool, error) {
	sl := s.slot(a.StageID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	src := a.Source
	if src == "" {
		src = Generated
	}
	fp := Fingerprint(a.Content)
	cur := sl.cur.Load()
	if cur != nil && cur.Fingerprint == fp && cur.Source == src && sameInputs(cur.Inputs, a.Inputs) {
		return cur, false, nil
	}

	next := a
	next.Source = src
	next.Fingerprint = fp
	if next.ProducedAt.IsZero() {
		next.ProducedAt = s.now()
	}
	next.Inputs = nil
	if len(a.Inputs) > 0 {
		next.Inputs = make(map[string]string, len(a.Inputs))
		for k, v := range a.Inputs {
			next.Inputs[k] = v
		}
	}
	changed := cur == nil || cur.Fingerprint != fp
	if changed {
		sl.gen++
	}
	next.Generation = sl.gen
	sl.cur.Store(&next)
	return &next, changed, nil
}

func sameInputs(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Delete drops id's artifact. Later Puts continue the generation count.
func (s *Store) Delete(id string) {
	sl := s.lookupSlot(id)
	if sl == nil {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.cur.Store(nil)
}

// IDs returns the ids holding an artifact, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.slots))
	for id, sl := range s.slots {
		if sl.cur.Load() != nil {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns the current artifact of every slot.
func (s *Store) Snapshot() map[string]*Artifact {
	out := make(map[string]*Artifact)
	for _, id := range s.IDs() {
		if a, ok := s.Get(id); ok {
			out[id] = a
		}
	}
	return out
}
