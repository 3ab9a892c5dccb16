package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// ContractKind selects the validator applied to a stage's raw output.
type ContractKind string

const (
	StructuredMarkdown ContractKind = "structured-markdown"
	StrictJSON         ContractKind = "strict-json"
)

// Contract holds the structural rules a stage output must satisfy.
type Contract struct {
	Kind ContractKind `yaml:"kind"`

	// structured-markdown
	Title    string    `yaml:"title"`    // exact first line, empty for none
	Header   []string  `yaml:"header"`   // labels required between title and first section
	Sections []Section `yaml:"sections"` // mandated order
	Patterns []Pattern `yaml:"patterns"`

	// strict-json
	Schema *Schema `yaml:"schema"`

	References []Reference `yaml:"references"`
}

// Section is one mandated heading. Optional sections follow an
// omit-if-none rule: absent is fine, placeholder text is not.
type Section struct {
	Heading  string `yaml:"heading"`
	Optional bool   `yaml:"omit-if-none"`
	Prefix   bool   `yaml:"prefix"`
}

// Matches reports whether a heading line satisfies the section.
func (s Section) Matches(line string) bool {
	line = strings.TrimSpace(line)
	if s.Prefix {
		return strings.HasPrefix(line, s.Heading)
	}
	return line == s.Heading
}

// Pattern requires at least Min occurrences of Expr outside code fences, or,
// when Fence is set, at least Min fenced blocks with that info string.
type Pattern struct {
	Name  string `yaml:"name"`
	Expr  string `yaml:"regexp"`
	Fence string `yaml:"fence"`
	Min   int    `yaml:"min"`

	re *regexp.Regexp
}

// Re returns the compiled expression, nil for fence patterns.
func (p Pattern) Re() *regexp.Regexp { return p.re }

// FieldType is a JSON primitive or container type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeAny     FieldType = "any"
)

var knownTypes = map[FieldType]bool{
	TypeString: true, TypeNumber: true, TypeInteger: true,
	TypeBoolean: true, TypeObject: true, TypeArray: true, TypeAny: true,
}

// Schema describes the shape of one JSON value.
type Schema struct {
	Type     FieldType `yaml:"type"`
	Fields   []Field   `yaml:"fields"` // object
	Items    *Schema   `yaml:"items"`  // array
	Enum     []string  `yaml:"enum"`   // string
	Pattern  string    `yaml:"pattern"`
	Nullable bool      `yaml:"nullable"`

	re *regexp.Regexp
}

// Re returns the compiled string pattern, or nil.
func (s *Schema) Re() *regexp.Regexp { return s.re }

// Field is a named member of an object schema.
type Field struct {
	Name     string `yaml:"name"`
	Optional bool   `yaml:"optional"`
	Schema   `yaml:",inline"`
}

// Reference is a cross-artifact rule: every value Uses extracts from the
// output must appear among the values From extracts from Source. An empty
// Source means the output itself.
type Reference struct {
	Name   string    `yaml:"name"`
	Source string    `yaml:"source"`
	From   Extractor `yaml:"from"`
	Uses   Extractor `yaml:"uses"`
}

// Extractor pulls a set of strings out of a document, by JSON path
// (`phases[].tasks[].id`) or by regexp whose capture groups are joined with
// a single space.
type Extractor struct {
	Path string `yaml:"path"`
	Expr string `yaml:"regexp"`

	re *regexp.Regexp
}

// Re returns the compiled expression, or nil for path extractors.
func (e Extractor) Re() *regexp.Regexp { return e.re }

func (c *Contract) compile(stage string) error {
	switch c.Kind {
	case StructuredMarkdown:
		if c.Schema != nil {
			return fmt.Errorf("stage %q: schema is only valid on %s contracts", stage, StrictJSON)
		}
		for i, s := range c.Sections {
			if strings.TrimSpace(s.Heading) == "" {
				return fmt.Errorf("stage %q: section %d: heading is required", stage, i+1)
			}
			if !strings.HasPrefix(s.Heading, "#") {
				return fmt.Errorf("stage %q: section %q must be a markdown heading", stage, s.Heading)
			}
		}
		for i := range c.Patterns {
			p := &c.Patterns[i]
			if p.Min <= 0 {
				p.Min = 1
			}
			if (p.Expr == "") == (p.Fence == "") {
				return fmt.Errorf("stage %q: pattern %q: exactly one of regexp or fence is required", stage, p.Name)
			}
			if p.Expr != "" {
				re, err := regexp.Compile(p.Expr)
				if err != nil {
					return fmt.Errorf("stage %q: pattern %q: %w", stage, p.Name, err)
				}
				p.re = re
			}
		}
	case StrictJSON:
		if c.Schema == nil {
			return fmt.Errorf("stage %q: %s contract requires a schema", stage, StrictJSON)
		}
		if len(c.Sections) > 0 || len(c.Patterns) > 0 || c.Title != "" || len(c.Header) > 0 {
			return fmt.Errorf("stage %q: markdown rules are not valid on %s contracts", stage, StrictJSON)
		}
		if err := c.Schema.compile(stage, "$"); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("stage %q: contract kind is required", stage)
	default:
		return fmt.Errorf("stage %q: unknown contract kind %q (must be %s or %s)", stage, c.Kind, StructuredMarkdown, StrictJSON)
	}

	for i := range c.References {
		r := &c.References[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("reference-%d", i+1)
		}
		if err := r.From.compile(); err != nil {
			return fmt.Errorf("stage %q: reference %q: from: %w", stage, r.Name, err)
		}
		if err := r.Uses.compile(); err != nil {
			return fmt.Errorf("stage %q: reference %q: uses: %w", stage, r.Name, err)
		}
	}
	return nil
}

func (s *Schema) compile(stage, path string) error {
	if s.Type == "" {
		return fmt.Errorf("stage %q: schema %s: type is required", stage, path)
	}
	if !knownTypes[s.Type] {
		return fmt.Errorf("stage %q: schema %s: unknown type %q", stage, path, s.Type)
	}
	if len(s.Enum) > 0 && s.Type != TypeString {
		return fmt.Errorf("stage %q: schema %s: enum requires type string", stage, path)
	}
	if s.Pattern != "" {
		if s.Type != TypeString {
			return fmt.Errorf("stage %q: schema %s: pattern requires type string", stage, path)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("stage %q: schema %s: %w", stage, path, err)
		}
		s.re = re
	}
	switch s.Type {
	case TypeObject:
		seen := make(map[string]bool, len(s.Fields))
		for i := range s.Fields {
			f := &s.Fields[i]
			if f.Name == "" {
				return fmt.Errorf("stage %q: schema %s: field %d has no name", stage, path, i+1)
			}
			if seen[f.Name] {
				return fmt.Errorf("stage %q: schema %s: duplicate field %q", stage, path, f.Name)
			}
			seen[f.Name] = true
			if err := f.Schema.compile(stage, path+"."+f.Name); err != nil {
				return err
			}
		}
	case TypeArray:
		if s.Items != nil {
			if err := s.Items.compile(stage, path+"[]"); err != nil {
				return err
			}
		}
	default:
		if len(s.Fields) > 0 || s.Items != nil {
			return fmt.Errorf("stage %q: schema %s: fields and items need object or array type", stage, path)
		}
	}
	return nil
}

func (e *Extractor) compile() error {
	if (e.Path == "") == (e.Expr == "") {
		return fmt.Errorf("exactly one of path or regexp is required")
	}
	if e.Expr != "" {
		re, err := regexp.Compile(e.Expr)
		if err != nil {
			return err
		}
		if re.NumSubexp() == 0 {
			return fmt.Errorf("regexp %q needs at least one capture group", e.Expr)
		}
		e.re = re
	}
	return nil
}
