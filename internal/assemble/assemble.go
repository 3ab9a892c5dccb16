// Package assemble builds the context bundle a stage attempt is allowed to
// see: its succeeded upstream artifacts as labeled blocks, plus any repair
// feedback.
package assemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/store"
)

// ErrAssemblyInvariant means a required artifact was missing at assembly
// time. The scheduler never makes a stage ready in that state, so seeing it
// indicates a scheduling bug.
var ErrAssemblyInvariant = errors.New("assembly invariant violated")

// InvariantError names the stage and the required upstream ids it lacked.
type InvariantError struct {
	Stage   string
	Missing []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: stage %q: required upstream missing: %s",
		ErrAssemblyInvariant, e.Stage, strings.Join(e.Missing, ", "))
}

func (e *InvariantError) Unwrap() error { return ErrAssemblyInvariant }

// Source is the read side of the artifact store.
type Source interface {
	Get(id string) (*store.Artifact, bool)
}

// Block is one upstream artifact included in a bundle.
type Block struct {
	StageID  string
	Label    string
	Required bool
	Artifact *store.Artifact
}

// Bundle is the ordered context for one stage attempt. Bundles are treated
// as values: WithFeedback returns a new bundle.
type Bundle struct {
	Stage    string
	Blocks   []Block
	Feedback []string
}

// Build assembles the bundle for stage: required upstream artifacts in
// declared order, then whichever optional ones src holds. Absent optional
// artifacts are omitted. A missing required artifact is an InvariantError.
func Build(stage registry.Stage, reg *registry.Registry, src Source) (*Bundle, error) {
	b := &Bundle{Stage: stage.ID}
	var missing []string
	for _, id := range stage.Required {
		a, ok := src.Get(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		b.Blocks = append(b.Blocks, Block{StageID: id, Label: label(reg, id), Required: true, Artifact: a})
	}
	if len(missing) > 0 {
		return nil, &InvariantError{Stage: stage.ID, Missing: missing}
	}
	for _, id := range stage.Optional {
		if a, ok := src.Get(id); ok {
			b.Blocks = append(b.Blocks, Block{StageID: id, Label: label(reg, id), Artifact: a})
		}
	}
	return b, nil
}

func label(reg *registry.Registry, id string) string {
	if reg != nil {
		if s, ok := reg.Stage(id); ok {
			return s.Title
		}
	}
	return id
}

// WithFeedback returns a copy of b with one more feedback block appended.
func (b *Bundle) WithFeedback(text string) *Bundle {
	cp := *b
	cp.Blocks = append([]Block(nil), b.Blocks...)
	cp.Feedback = append(append([]string(nil), b.Feedback...), text)
	return &cp
}

// Has reports whether the bundle includes id.
func (b *Bundle) Has(id string) bool {
	for _, blk := range b.Blocks {
		if blk.StageID == id {
			return true
		}
	}
	return false
}

// Upstream maps stage id to artifact text for every included block.
func (b *Bundle) Upstream() map[string]string {
	m := make(map[string]string, len(b.Blocks))
	for _, blk := range b.Blocks {
		m[blk.StageID] = blk.Artifact.Content
	}
	return m
}

// Inputs maps stage id to the fingerprint of every included block.
func (b *Bundle) Inputs() map[string]string {
	m := make(map[string]string, len(b.Blocks))
	for _, blk := range b.Blocks {
		m[blk.StageID] = blk.Artifact.Fingerprint
	}
	return m
}

// Render formats the bundle as delimited, labeled blocks.
func (b *Bundle) Render() string {
	var buf strings.Builder
	for _, blk := range b.Blocks {
		name := strings.ToUpper(blk.Label)
		fmt.Fprintf(&buf, "===== %s =====\n", name)
		buf.WriteString(strings.TrimRight(blk.Artifact.Content, "\n"))
		fmt.Fprintf(&buf, "\n===== END %s =====\n\n", name)
	}
	for i, fb := range b.Feedback {
		fmt.Fprintf(&buf, "===== VALIDATION FEEDBACK (attempt %d) =====\n", i+1)
		buf.WriteString(strings.TrimRight(fb, "\n"))
		buf.WriteString("\n===== END VALIDATION FEEDBACK =====\n\n")
	}
	return buf.String()
}

// Prompt joins the stage instruction and the rendered bundle.
func (b *Bundle) Prompt(instruction string) string {
	instruction = strings.TrimRight(instruction, "\n")
	ctx := b.Render()
	if ctx == "" {
		return instruction + "\n"
	}
	return instruction + "\n\n" + ctx
}
