// Package watch reloads input stages when their files change on disk and
// delivers the new artifacts to a running scheduler.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jorge-barreto/docchain/internal/inputs"
	"github.com/jorge-barreto/docchain/internal/store"
)

type Config struct {
	Root     string
	Inputs   map[string]string // stage id -> path or glob, relative to Root
	Debounce time.Duration     // default 300ms
	Logger   *slog.Logger
}

// Watcher batches file events per input stage and emits one replacement
// artifact per stage whose content actually changed.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	log     *slog.Logger
	pattern map[string]string // stage id -> absolute path or pattern

	mu      sync.Mutex
	pending map[string]bool
	known   map[string]string // stage id -> last emitted fingerprint

	updates chan store.Artifact
}

// New creates the watcher and registers every directory the inputs can
// live in. Events are not read until Run.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		log:     log,
		pattern: make(map[string]string, len(cfg.Inputs)),
		pending: make(map[string]bool),
		known:   make(map[string]string),
		updates: make(chan store.Artifact),
	}
	for id, spec := range cfg.Inputs {
		abs := spec
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cfg.Root, spec)
		}
		w.pattern[id] = filepath.Clean(abs)
		if err := w.addDirs(abs, inputs.IsGlob(spec)); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", id, err)
		}
	}
	return w, nil
}

func (w *Watcher) addDirs(abs string, glob bool) error {
	if !glob {
		return w.fsw.Add(filepath.Dir(abs))
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
	base = filepath.FromSlash(base)
	return filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != base && inputs.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Updates delivers replacement artifacts. It is closed when Run returns.
func (w *Watcher) Updates() <-chan store.Artifact { return w.updates }

// Prime records the artifacts already handed to the scheduler so saving a
// file without changing it emits nothing.
func (w *Watcher) Prime(artifacts []store.Artifact) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range artifacts {
		w.known[a.StageID] = store.Fingerprint(a.Content)
	}
}

// Stages returns the input stage ids whose files include path.
func (w *Watcher) Stages(path string) []string {
	path = filepath.Clean(path)
	var ids []string
	for id, p := range w.pattern {
		if !inputs.IsGlob(w.cfg.Inputs[id]) {
			if p == path {
				ids = append(ids, id)
			}
			continue
		}
		if ok, _ := doublestar.PathMatch(p, path); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Run processes events until ctx is done, then closes Updates and the
// underlying fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.updates)
	defer w.fsw.Close()

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()
	w.log.Info("watching inputs", "stages", len(w.pattern), "debounce", w.cfg.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !inputs.SkipDir(filepath.Base(ev.Name)) {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	ids := w.Stages(ev.Name)
	if len(ids) == 0 {
		return
	}
	w.mu.Lock()
	for _, id := range ids {
		w.pending[id] = true
	}
	w.mu.Unlock()
	w.log.Debug("input change detected", "path", ev.Name, "op", ev.Op.String(), "stages", ids)
}

// flush reloads every stage with pending events. A stage whose files can
// not be read right now (mid-save, removed) keeps its last artifact.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		a, err := inputs.LoadStage(w.cfg.Root, id, w.cfg.Inputs[id])
		if err != nil {
			w.log.Warn("failed to reload input", "stage", id, "error", err)
			continue
		}
		fp := store.Fingerprint(a.Content)
		w.mu.Lock()
		same := w.known[id] == fp
		w.known[id] = fp
		w.mu.Unlock()
		if same {
			continue
		}
		select {
		case w.updates <- a:
			w.log.Info("input replaced", "stage", id, "fingerprint", fp[:12])
		case <-ctx.Done():
			return
		}
	}
}
