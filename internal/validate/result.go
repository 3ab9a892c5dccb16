package validate

import (
	"fmt"
	"strings"
)

// Rule names the contract rule a defect violates.
type Rule string

const (
	// structured-markdown
	MissingSection      Rule = "MissingSection"
	WrongHeadingText    Rule = "WrongHeadingText"
	UnexpectedCodeFence Rule = "UnexpectedCodeFence"
	SectionOutOfOrder   Rule = "SectionOutOfOrder"
	PlaceholderSection  Rule = "PlaceholderSection"

	// strict-json
	ParseError          Rule = "ParseError"
	MissingField        Rule = "MissingField"
	TypeMismatch        Rule = "TypeMismatch"
	EnumViolation       Rule = "EnumViolation"
	ArrayElementInvalid Rule = "ArrayElementInvalid"

	// cross-artifact
	DanglingReference Rule = "DanglingReference"
)

// Defect is one rule violation. Subject names the offending section, field
// path or reference value.
type Defect struct {
	Rule    Rule   `json:"rule"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (d Defect) String() string {
	if d.Subject == "" {
		return string(d.Rule)
	}
	return string(d.Rule) + ":" + d.Subject
}

// Result is either Accepted with the output text, or Rejected with an
// ordered, non-empty defect list. The zero value is not a valid Result.
type Result struct {
	accepted bool
	content  string
	defects  []Defect
}

// Accept returns an Accepted result carrying content.
func Accept(content string) Result {
	return Result{accepted: true, content: content}
}

// Reject returns a Rejected result. It panics without defects, since a
// rejection nobody can act on is a validator bug.
func Reject(defects ...Defect) Result {
	if len(defects) == 0 {
		panic("validate: Reject called without defects")
	}
	d := make([]Defect, len(defects))
	copy(d, defects)
	return Result{defects: d}
}

// Accepted reports whether the output satisfied its contract.
func (r Result) Accepted() bool { return r.accepted }

// Content returns the accepted output; empty when rejected.
func (r Result) Content() string { return r.content }

// Defects returns a copy of the defect list; nil when accepted.
func (r Result) Defects() []Defect {
	if r.accepted {
		return nil
	}
	d := make([]Defect, len(r.defects))
	copy(d, r.defects)
	return d
}

func (r Result) String() string {
	if r.accepted {
		return "Accepted"
	}
	parts := make([]string, len(r.defects))
	for i, d := range r.defects {
		parts[i] = d.String()
	}
	return "Rejected([" + strings.Join(parts, ", ") + "])"
}

// Err converts a rejection into a *ContractViolation for stage.
func (r Result) Err(stage string) error {
	if r.accepted {
		return nil
	}
	return &ContractViolation{Stage: stage, Defects: r.Defects()}
}

// Feedback renders the defects as a block to show the generator on retry.
func (r Result) Feedback() string {
	if r.accepted {
		return ""
	}
	return FormatFeedback(r.defects)
}

// FormatFeedback renders defects as a markdown feedback block.
func FormatFeedback(defects []Defect) string {
	var sb strings.Builder
	sb.WriteString("## Validation Failed\n\n")
	sb.WriteString("Your previous output was rejected. Fix exactly these defects and return the complete document again:\n\n")
	for i, d := range defects {
		fmt.Fprintf(&sb, "%d. %s", i+1, d.String())
		if d.Detail != "" {
			fmt.Fprintf(&sb, ": %s", d.Detail)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ContractViolation is a rejected output. DanglingReference defects are
// reported through it like any other rule.
type ContractViolation struct {
	Stage   string
	Defects []Defect
}

func (e *ContractViolation) Error() string {
	parts := make([]string, len(e.Defects))
	for i, d := range e.Defects {
		parts[i] = d.String()
	}
	return fmt.Sprintf("stage %q: contract violation: %s", e.Stage, strings.Join(parts, ", "))
}

// Has reports whether any defect violates rule.
func (e *ContractViolation) Has(rule Rule) bool {
	for _, d := range e.Defects {
		if d.Rule == rule {
			return true
		}
	}
	return false
}
