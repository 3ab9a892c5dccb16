package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jorge-barreto/docchain/internal/config"
	"github.com/jorge-barreto/docchain/internal/inputs"
	"github.com/jorge-barreto/docchain/internal/invoke"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/state"
	"github.com/jorge-barreto/docchain/internal/store"
)

// project is a loaded .docchain/ directory.
type project struct {
	Root         string
	ArtifactsDir string
	Config       *config.Config
	Registry     *registry.Registry
}

// loadProject finds the project above the working directory and loads its
// config and stage registry.
func loadProject() (*project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		return nil, err
	}
	return openProject(root)
}

func openProject(root string) (*project, error) {
	cfg, err := config.Load(config.Path(root), root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	reg := registry.Default()
	if cfg.Registry != "" {
		path := cfg.Registry
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if reg, err = registry.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading registry: %w", err)
		}
	}
	if err := config.CheckStages(cfg, reg); err != nil {
		return nil, err
	}
	return &project{Root: root, ArtifactsDir: config.ArtifactsDir(root), Config: cfg, Registry: reg}, nil
}

// openRepository opens the run store selected by the config.
func (p *project) openRepository() (state.Repository, error) {
	if p.Config.State.Backend == config.BackendSQLite {
		if err := os.MkdirAll(p.ArtifactsDir, 0755); err != nil {
			return nil, err
		}
		repo, err := state.OpenSQLite(filepath.Join(p.ArtifactsDir, "state.db"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return state.NewFileRepository(p.ArtifactsDir), nil
}

// lastRun returns the most recent saved run, or nil when there is none.
func (p *project) lastRun(ctx context.Context) (*state.RunState, error) {
	repo, err := p.openRepository()
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	run, err := repo.Load(ctx)
	if errors.Is(err, state.ErrNoRun) {
		return nil, nil
	}
	return run, err
}

// inputSpecs merges the configured inputs with "stage=path" overrides.
func (p *project) inputSpecs(overrides []string) (map[string]string, error) {
	specs := make(map[string]string, len(p.Config.Inputs)+len(overrides))
	for id, spec := range p.Config.Inputs {
		specs[id] = spec
	}
	for _, o := range overrides {
		id, spec, err := inputs.ParseFlag(o)
		if err != nil {
			return nil, err
		}
		st, ok := p.Registry.Stage(id)
		if !ok {
			return nil, fmt.Errorf("--input: unknown stage %q", id)
		}
		if !st.Input {
			return nil, fmt.Errorf("--input: stage %q is generated, not an input", id)
		}
		specs[id] = spec
	}
	return specs, nil
}

// environment returns the template environment of a run.
func (p *project) environment(runID string) *invoke.Environment {
	env := &invoke.Environment{ProjectRoot: p.Root, ArtifactsDir: p.ArtifactsDir, RunID: runID}
	if len(p.Config.Vars) > 0 {
		env.CustomVars = invoke.ExpandConfigVars(p.Config.Vars, env.Vars(registry.Stage{}, 0))
	}
	return env
}

// instruction builds a stage's instruction text: the configured prompt
// file, if any, with variables expanded, followed by the contract rules.
func (p *project) instruction(env *invoke.Environment) func(registry.Stage, int) (string, error) {
	return func(st registry.Stage, attempt int) (string, error) {
		rules := registry.Describe(st)
		path := p.Config.PromptPath(p.Root, st.ID)
		if path == "" {
			return rules, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt for %s: %w", st.ID, err)
		}
		text := invoke.ExpandVars(string(data), env.Vars(st, attempt))
		return strings.TrimRight(text, "\n") + "\n\n" + rules, nil
	}
}

// seed combines the previous run's generated artifacts with freshly read
// inputs. Supplied artifacts are always reread from disk.
func seed(reg *registry.Registry, prev *state.RunState, supplied []store.Artifact) []store.Artifact {
	var out []store.Artifact
	if prev != nil {
		for _, a := range prev.Artifacts() {
			st, ok := reg.Stage(a.StageID)
			if !ok || st.Input {
				continue
			}
			out = append(out, a)
		}
	}
	out = append(out, supplied...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StageID < out[j].StageID })
	return out
}
