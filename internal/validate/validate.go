// Package validate checks raw stage output against the stage's contract.
// Validation is a pure function of the output and the upstream texts.
package validate

import (
	"github.com/jorge-barreto/docchain/internal/registry"
)

// Validate checks raw against stage's contract. upstream maps stage id to
// the accepted text of each upstream artifact available to this attempt;
// it is only read by cross-artifact reference rules.
func Validate(stage registry.Stage, raw string, upstream map[string]string) Result {
	var defects []Defect
	switch stage.Contract.Kind {
	case registry.StructuredMarkdown:
		defects = validateMarkdown(stage.Contract, raw)
	case registry.StrictJSON:
		defects = validateJSON(stage.Contract, raw)
	}
	defects = append(defects, checkReferences(stage, raw, upstream)...)
	if len(defects) > 0 {
		return Reject(defects...)
	}
	return Accept(raw)
}
