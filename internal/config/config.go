package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jorge-barreto/docchain/internal/registry"
	"gopkg.in/yaml.v3"
)

// Dir is the per-project directory holding config, prompts and artifacts.
const Dir = ".docchain"

// Invoker types.
const (
	InvokerClaude  = "claude"
	InvokerCommand = "command"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Invoker struct {
	Type    string `yaml:"type"`
	Model   string `yaml:"model"`
	Run     string `yaml:"run"`
	Timeout int    `yaml:"timeout"` // minutes
}

// Retries holds the per-contract-kind retry budgets. Nil means unset.
type Retries struct {
	StructuredMarkdown *int `yaml:"structured-markdown"`
	StrictJSON         *int `yaml:"strict-json"`
}

type StageConfig struct {
	Prompt  string `yaml:"prompt"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
}

type State struct {
	Backend string `yaml:"backend"`
}

// VarEntry is one user-defined template variable.
type VarEntry struct {
	Key   string
	Value string
}

// OrderedVars keeps vars in declaration order so later values can refer to
// earlier ones.
type OrderedVars []VarEntry

func (v *OrderedVars) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("vars: expected a mapping, got %s", kindName(node.Kind))
	}
	out := make(OrderedVars, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("vars: %q: value must be a scalar", k.Value)
		}
		out = append(out, VarEntry{Key: k.Value, Value: val.Value})
	}
	*v = out
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "document"
}

type Config struct {
	Name        string                 `yaml:"name"`
	Registry    string                 `yaml:"registry"`
	Invoker     Invoker                `yaml:"invoker"`
	MaxParallel int                    `yaml:"max-parallel"`
	Retries     Retries                `yaml:"retries"`
	Inputs      map[string]string      `yaml:"inputs"`
	Stages      map[string]StageConfig `yaml:"stages"`
	State       State                  `yaml:"state"`
	Vars        OrderedVars            `yaml:"vars"`
}

// Load reads a YAML config file and returns a validated Config.
func Load(path, projectRoot string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := Validate(&cfg, projectRoot); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the config file location under projectRoot.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, Dir, "config.yaml")
}

// ArtifactsDir returns the run workspace under projectRoot.
func ArtifactsDir(projectRoot string) string {
	return filepath.Join(projectRoot, Dir, "artifacts")
}

// ErrNoProject is returned by FindProjectRoot when no config is found.
var ErrNoProject = errors.New("no .docchain/config.yaml found (run 'docchain init' first)")

// FindProjectRoot walks up from dir until it finds a directory holding
// .docchain/config.yaml.
func FindProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(Path(dir)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoProject
		}
		dir = parent
	}
}

// Budget returns the retry budget for a stage whose contract kind is kind.
func (c *Config) Budget(stageID string, kind registry.ContractKind) int {
	if sc, ok := c.Stages[stageID]; ok && sc.Retries != nil {
		return *sc.Retries
	}
	var p *int
	switch kind {
	case registry.StructuredMarkdown:
		p = c.Retries.StructuredMarkdown
	case registry.StrictJSON:
		p = c.Retries.StrictJSON
	}
	if p == nil {
		return 0
	}
	return *p
}

// Model returns the model used for stageID.
func (c *Config) Model(stageID string) string {
	if sc, ok := c.Stages[stageID]; ok && sc.Model != "" {
		return sc.Model
	}
	return c.Invoker.Model
}

// Timeout returns the per-attempt generation timeout for stageID.
func (c *Config) Timeout(stageID string) time.Duration {
	if sc, ok := c.Stages[stageID]; ok && sc.Timeout > 0 {
		return time.Duration(sc.Timeout) * time.Minute
	}
	return time.Duration(c.Invoker.Timeout) * time.Minute
}

// PromptPath returns the configured instruction file for stageID relative to
// projectRoot, or "" when the stage uses its built-in instruction.
func (c *Config) PromptPath(projectRoot, stageID string) string {
	sc, ok := c.Stages[stageID]
	if !ok || sc.Prompt == "" {
		return ""
	}
	if filepath.IsAbs(sc.Prompt) {
		return sc.Prompt
	}
	return filepath.Join(projectRoot, sc.Prompt)
}
