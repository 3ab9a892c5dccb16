package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jorge-barreto/docchain/internal/registry"
)

// decodeStrict parses exactly one JSON value. Surrounding whitespace is
// allowed; any other leading or trailing text is not.
func decodeStrict(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("output is empty")
	}
	if strings.HasPrefix(trimmed, "```") {
		return nil, errors.New("output is wrapped in a code fence; return the bare JSON value")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected end of JSON input (output truncated?)")
		}
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		off := dec.InputOffset()
		return nil, fmt.Errorf("unexpected text after JSON value at offset %d", off)
	}
	return v, nil
}

func validateJSON(c registry.Contract, raw string) []Defect {
	v, err := decodeStrict(raw)
	if err != nil {
		return []Defect{{Rule: ParseError, Detail: err.Error()}}
	}
	return checkValue(c.Schema, v, "")
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func subject(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func mismatch(path string, want registry.FieldType, v any) Defect {
	return Defect{
		Rule:    TypeMismatch,
		Subject: subject(path),
		Detail:  fmt.Sprintf("expected %s, got %s", want, typeName(v)),
	}
}

// checkValue walks v against s and returns defects in document order.
func checkValue(s *registry.Schema, v any, path string) []Defect {
	if s == nil || s.Type == registry.TypeAny {
		return nil
	}
	if v == nil {
		if s.Nullable {
			return nil
		}
		return []Defect{mismatch(path, s.Type, v)}
	}

	switch s.Type {
	case registry.TypeString:
		str, ok := v.(string)
		if !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return []Defect{{
				Rule:    EnumViolation,
				Subject: subject(path),
				Detail:  fmt.Sprintf("%q is not one of %s", str, quoteAll(s.Enum)),
			}}
		}
		if re := s.Re(); re != nil && !re.MatchString(str) {
			return []Defect{{
				Rule:    TypeMismatch,
				Subject: subject(path),
				Detail:  fmt.Sprintf("%q does not match pattern %s", str, s.Pattern),
			}}
		}
	case registry.TypeNumber:
		if _, ok := v.(json.Number); !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
	case registry.TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return []Defect{{Rule: TypeMismatch, Subject: subject(path), Detail: fmt.Sprintf("expected integer, got %s", n)}}
		}
	case registry.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
	case registry.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
		var defects []Defect
		for i := range s.Fields {
			f := &s.Fields[i]
			fv, present := obj[f.Name]
			fp := joinPath(path, f.Name)
			if !present {
				if !f.Optional {
					defects = append(defects, Defect{
						Rule:    MissingField,
						Subject: fp,
						Detail:  fmt.Sprintf("required %s field %q is missing", f.Type, f.Name),
					})
				}
				continue
			}
			defects = append(defects, checkValue(&f.Schema, fv, fp)...)
		}
		return defects
	case registry.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return []Defect{mismatch(path, s.Type, v)}
		}
		if s.Items == nil {
			return nil
		}
		var defects []Defect
		for i, el := range arr {
			ep := fmt.Sprintf("%s[%d]", path, i)
			sub := checkValue(s.Items, el, ep)
			if len(sub) == 0 {
				continue
			}
			parts := make([]string, len(sub))
			for j, d := range sub {
				parts[j] = d.String()
				if d.Detail != "" {
					parts[j] += " (" + d.Detail + ")"
				}
			}
			defects = append(defects, Defect{
				Rule:    ArrayElementInvalid,
				Subject: ep,
				Detail:  strings.Join(parts, "; "),
			})
		}
		return defects
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func quoteAll(list []string) string {
	q := make([]string, len(list))
	for i, s := range list {
		q[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(q, ", ") + "]"
}
