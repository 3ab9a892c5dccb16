package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jorge-barreto/docchain/internal/registry"
)

var validModels = map[string]bool{
	"":       true,
	"opus":   true,
	"sonnet": true,
	"haiku":  true,
}

var varNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Builtins are the template variables the pipeline always provides.
var Builtins = []string{"PROJECT_ROOT", "ARTIFACTS_DIR", "STAGE", "STAGE_TITLE", "ATTEMPT", "RUN_ID"}

// Validate checks the config for errors and sets defaults.
func Validate(cfg *Config, projectRoot string) error {
	if cfg.Name == "" {
		return fmt.Errorf("config: 'name' is required")
	}

	builtins := make(map[string]bool, len(Builtins))
	for _, b := range Builtins {
		builtins[b] = true
	}
	seenVars := make(map[string]bool)
	for _, v := range cfg.Vars {
		if v.Key == "" {
			return fmt.Errorf("config: vars: empty variable name")
		}
		if !varNameRe.MatchString(v.Key) {
			return fmt.Errorf("config: vars: %q is not a valid variable name (must match [A-Za-z_][A-Za-z0-9_]*)", v.Key)
		}
		if builtins[v.Key] {
			return fmt.Errorf("config: vars: %q overrides a built-in variable", v.Key)
		}
		if seenVars[v.Key] {
			return fmt.Errorf("config: vars: duplicate variable %q", v.Key)
		}
		seenVars[v.Key] = true
	}

	inv := &cfg.Invoker
	if inv.Type == "" {
		inv.Type = InvokerClaude
	}
	switch inv.Type {
	case InvokerClaude:
		if inv.Model == "" {
			inv.Model = "sonnet"
		}
		if inv.Timeout == 0 {
			inv.Timeout = 30
		}
	case InvokerCommand:
		if inv.Run == "" {
			return fmt.Errorf("config: invoker: 'run' is required for type command")
		}
		if inv.Timeout == 0 {
			inv.Timeout = 10
		}
	default:
		return fmt.Errorf("config: invoker: unknown type %q (must be claude or command)", inv.Type)
	}
	if !validModels[inv.Model] {
		return fmt.Errorf("config: invoker: unknown model %q (must be opus, sonnet, or haiku)", inv.Model)
	}
	if inv.Timeout < 0 {
		return fmt.Errorf("config: invoker: timeout must be >= 0")
	}

	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 2
	}
	if cfg.MaxParallel < 1 {
		return fmt.Errorf("config: 'max-parallel' must be >= 1")
	}

	if cfg.Retries.StructuredMarkdown == nil {
		cfg.Retries.StructuredMarkdown = intPtr(1)
	}
	if cfg.Retries.StrictJSON == nil {
		cfg.Retries.StrictJSON = intPtr(2)
	}
	if *cfg.Retries.StructuredMarkdown < 0 || *cfg.Retries.StrictJSON < 0 {
		return fmt.Errorf("config: retries must be >= 0")
	}

	switch cfg.State.Backend {
	case "":
		cfg.State.Backend = BackendFile
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: state: unknown backend %q (must be file or sqlite)", cfg.State.Backend)
	}

	if cfg.Registry != "" {
		p := cfg.Registry
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectRoot, p)
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config: registry file %q not found", p)
		}
	}

	for id, path := range cfg.Inputs {
		if path == "" {
			return fmt.Errorf("config: input %q: path is required", id)
		}
	}

	for _, id := range sortedKeys(cfg.Stages) {
		sc := cfg.Stages[id]
		if sc.Prompt != "" {
			if _, err := os.Stat(cfg.PromptPath(projectRoot, id)); err != nil {
				return fmt.Errorf("config: stage %q: prompt file %q not found", id, cfg.PromptPath(projectRoot, id))
			}
		}
		if !validModels[sc.Model] {
			return fmt.Errorf("config: stage %q: unknown model %q (must be opus, sonnet, or haiku)", id, sc.Model)
		}
		if sc.Timeout < 0 {
			return fmt.Errorf("config: stage %q: timeout must be >= 0", id)
		}
		if sc.Retries != nil && *sc.Retries < 0 {
			return fmt.Errorf("config: stage %q: retries must be >= 0", id)
		}
	}
	return nil
}

// CheckStages rejects inputs and stage overrides that name stages the
// registry does not know, or that target the wrong kind of stage.
func CheckStages(cfg *Config, reg *registry.Registry) error {
	for _, id := range sortedKeys(cfg.Inputs) {
		s, ok := reg.Stage(id)
		if !ok {
			return fmt.Errorf("config: inputs: unknown stage %q", id)
		}
		if !s.Input {
			return fmt.Errorf("config: inputs: stage %q is generated, not an input", id)
		}
	}
	for _, id := range sortedKeys(cfg.Stages) {
		s, ok := reg.Stage(id)
		if !ok {
			return fmt.Errorf("config: stages: unknown stage %q", id)
		}
		if s.Input {
			return fmt.Errorf("config: stages: %q is an input stage and cannot be configured", id)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func intPtr(n int) *int { return &n }
