package registry

import (
	"fmt"
	"strings"
)

// Describe renders a stage's contract as plain instructions. It is the
// instruction used for stages without a configured prompt file, and is
// appended to configured prompts so the format rules always reach the
// generator.
func Describe(s Stage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the %s using the context below.\n\n", s.Title)
	c := s.Contract
	switch c.Kind {
	case StructuredMarkdown:
		b.WriteString("Output format: raw markdown. Do not wrap the document in a code fence.\n")
		if c.Title != "" {
			fmt.Fprintf(&b, "- The first line must be exactly: %s\n", c.Title)
		}
		for _, h := range c.Header {
			fmt.Fprintf(&b, "- Before the first section, include a line starting with %s\n", h)
		}
		if len(c.Sections) > 0 {
			b.WriteString("- Include these sections in this order:\n")
			for _, sec := range c.Sections {
				note := ""
				if sec.Optional {
					note = " (omit entirely if there is nothing to say; never write a placeholder)"
				}
				fmt.Fprintf(&b, "  %s%s\n", sec.Heading, note)
			}
		}
		for _, p := range c.Patterns {
			if p.Fence != "" {
				fmt.Fprintf(&b, "- Include at least %d ```%s code blocks\n", p.Min, p.Fence)
			} else {
				fmt.Fprintf(&b, "- Include at least %d line(s) matching %s (%s)\n", p.Min, p.Expr, p.Name)
			}
		}
	case StrictJSON:
		b.WriteString("Output format: a single JSON value and nothing else. No prose, no code fence.\n")
		b.WriteString("Shape:\n")
		writeSchema(&b, c.Schema, 1)
	}
	for _, r := range c.References {
		src := "this document"
		if r.Source != "" {
			src = "the " + r.Source + " artifact"
		}
		fmt.Fprintf(&b, "- Every %s must refer to a value defined in %s\n", r.Name, src)
	}
	return b.String()
}

func writeSchema(b *strings.Builder, s *Schema, depth int) {
	if s == nil {
		return
	}
	pad := strings.Repeat("  ", depth)
	switch s.Type {
	case TypeObject:
		for _, f := range s.Fields {
			fmt.Fprintf(b, "%s%s: %s%s\n", pad, f.Name, typeLabel(&f.Schema), fieldNote(f))
			if f.Type == TypeObject || f.Type == TypeArray {
				writeSchema(b, &f.Schema, depth+1)
			}
		}
	case TypeArray:
		if s.Items != nil && s.Items.Type == TypeObject {
			fmt.Fprintf(b, "%seach element:\n", pad)
			writeSchema(b, s.Items, depth+1)
		} else if s.Items != nil && depth == 1 {
			fmt.Fprintf(b, "%sarray of %s\n", pad, typeLabel(s.Items))
		}
	default:
		if depth == 1 {
			fmt.Fprintf(b, "%s%s\n", pad, typeLabel(s))
		}
	}
}

func typeLabel(s *Schema) string {
	label := string(s.Type)
	switch {
	case len(s.Enum) > 0:
		label = "one of " + strings.Join(s.Enum, " | ")
	case s.Type == TypeArray && s.Items != nil:
		label = "array of " + string(s.Items.Type)
	case s.Pattern != "":
		label += " matching " + s.Pattern
	}
	if s.Nullable {
		label += " or null"
	}
	return label
}

func fieldNote(f Field) string {
	if f.Optional {
		return " (optional)"
	}
	return ""
}
