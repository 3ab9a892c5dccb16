package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps the run as state.json, rewritten atomically on every
// save.
type FileRepository struct {
	mu   sync.Mutex
	path string
}

// NewFileRepository stores state.json under artifactsDir.
func NewFileRepository(artifactsDir string) *FileRepository {
	return &FileRepository{path: filepath.Join(artifactsDir, "state.json")}
}

func (f *FileRepository) Load(ctx context.Context) (*RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoRun
		}
		return nil, err
	}
	var r RunState
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Stages == nil {
		r.Stages = make(map[string]*StageRecord)
	}
	return &r, nil
}

func (f *FileRepository) Save(ctx context.Context, run *RunState) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFileAtomic(f.path, data, 0644)
}

func (f *FileRepository) Close() error { return nil }
