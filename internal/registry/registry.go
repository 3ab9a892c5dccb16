// Package registry holds the static stage definitions: dependencies and
// output contracts. A Registry never changes after New returns.
package registry

import (
	"fmt"
	"regexp"

	"github.com/jorge-barreto/docchain/internal/graph"
)

// Stage is one node of the artifact chain. Input stages are never
// generated; their artifacts are supplied at run start.
type Stage struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Input    bool     `yaml:"input"`
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
	Contract Contract `yaml:"contract"`
}

// Deps returns required then optional upstream ids.
func (s Stage) Deps() []string {
	out := make([]string, 0, len(s.Required)+len(s.Optional))
	out = append(out, s.Required...)
	return append(out, s.Optional...)
}

// IsRequired reports whether upstream gates this stage's readiness.
func (s Stage) IsRequired(upstream string) bool {
	for _, r := range s.Required {
		if r == upstream {
			return true
		}
	}
	return false
}

var stageIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Registry is an immutable, validated set of stages.
type Registry struct {
	stages []Stage
	index  map[string]int
	graph  *graph.Graph
}

// New validates stages and takes ownership of them. Cycles are not an error
// here; Order reports them.
func New(stages []Stage) (*Registry, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("registry: at least one stage is required")
	}
	r := &Registry{
		stages: stages,
		index:  make(map[string]int, len(stages)),
	}
	nodes := make([]graph.Node, len(stages))
	for i := range stages {
		s := &stages[i]
		if !stageIDRe.MatchString(s.ID) {
			return nil, fmt.Errorf("registry: stage %d: id %q must match %s", i+1, s.ID, stageIDRe)
		}
		if s.Title == "" {
			return nil, fmt.Errorf("registry: stage %q: title is required", s.ID)
		}
		if s.Input {
			if len(s.Required)+len(s.Optional) > 0 {
				return nil, fmt.Errorf("registry: input stage %q cannot have upstream stages", s.ID)
			}
			if s.Contract.Kind != "" {
				return nil, fmt.Errorf("registry: input stage %q cannot declare a contract", s.ID)
			}
		} else if err := s.Contract.compile(s.ID); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		seen := make(map[string]bool)
		for _, d := range s.Deps() {
			if seen[d] {
				return nil, fmt.Errorf("registry: stage %q lists upstream %q twice", s.ID, d)
			}
			seen[d] = true
		}
		for _, ref := range s.Contract.References {
			if ref.Source != "" && !seen[ref.Source] {
				return nil, fmt.Errorf("registry: stage %q: reference %q reads %q which is not an upstream stage", s.ID, ref.Name, ref.Source)
			}
		}
		r.index[s.ID] = i
		nodes[i] = graph.Node{ID: s.ID, Deps: s.Deps()}
	}
	g, err := graph.New(nodes)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	r.graph = g
	return r, nil
}

// Stage looks up a stage by id.
func (r *Registry) Stage(id string) (Stage, bool) {
	i, ok := r.index[id]
	if !ok {
		return Stage{}, false
	}
	return r.stages[i], true
}

// Stages returns every stage in declaration order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Len returns the number of stages.
func (r *Registry) Len() int { return len(r.stages) }

// Order returns a topological order of stage ids, or an error wrapping
// graph.ErrCycleDetected.
func (r *Registry) Order() ([]string, error) {
	return r.graph.Sort()
}

// Dependents returns the stages that list id as an upstream.
func (r *Registry) Dependents(id string) []string {
	return r.graph.Dependents(id)
}

// Downstream returns every transitive dependent of id.
func (r *Registry) Downstream(id string) []string {
	return r.graph.Downstream(id)
}

// RequiredDownstream returns every stage that transitively requires id,
// following required edges only, in declaration order.
func (r *Registry) RequiredDownstream(id string) []string {
	hit := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, s := range r.stages {
			if hit[s.ID] {
				continue
			}
			for _, req := range s.Required {
				if hit[req] {
					hit[s.ID] = true
					changed = true
					break
				}
			}
		}
	}
	var out []string
	for _, s := range r.stages {
		if s.ID != id && hit[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}
