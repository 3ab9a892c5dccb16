package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jorge-barreto/docchain/internal/registry"
)

// Extract returns the values e selects from text, in order of appearance,
// without duplicates.
func Extract(e registry.Extractor, text string) ([]string, error) {
	var vals []string
	if re := e.Re(); re != nil {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			var parts []string
			for _, g := range m[1:] {
				if g = strings.TrimSpace(g); g != "" {
					parts = append(parts, g)
				}
			}
			if len(parts) > 0 {
				vals = append(vals, strings.Join(parts, " "))
			}
		}
	} else {
		dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		vals = walkPath(v, splitPath(e.Path), nil)
	}
	return dedupe(vals), nil
}

type segment struct {
	name  string
	array bool
}

func splitPath(path string) []segment {
	var segs []segment
	for _, p := range strings.Split(path, ".") {
		s := segment{name: p}
		if strings.HasSuffix(p, "[]") {
			s.name = strings.TrimSuffix(p, "[]")
			s.array = true
		}
		segs = append(segs, s)
	}
	return segs
}

func walkPath(v any, segs []segment, out []string) []string {
	if len(segs) == 0 {
		switch x := v.(type) {
		case string:
			return append(out, x)
		case json.Number:
			return append(out, x.String())
		case bool:
			return append(out, fmt.Sprint(x))
		}
		return out
	}
	seg := segs[0]
	if seg.name != "" {
		obj, ok := v.(map[string]any)
		if !ok {
			return out
		}
		v = obj[seg.name]
	}
	if !seg.array {
		return walkPath(v, segs[1:], out)
	}
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, el := range arr {
		out = walkPath(el, segs[1:], out)
	}
	return out
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// checkReferences evaluates every reference rule whose source is available.
// Rules reading an absent upstream are skipped.
func checkReferences(stage registry.Stage, raw string, upstream map[string]string) []Defect {
	var defects []Defect
	for _, ref := range stage.Contract.References {
		source := raw
		label := "this document"
		if ref.Source != "" {
			text, ok := upstream[ref.Source]
			if !ok {
				continue
			}
			source = text
			label = ref.Source
		}
		known, err := Extract(ref.From, source)
		if err != nil {
			continue
		}
		used, err := Extract(ref.Uses, raw)
		if err != nil {
			continue
		}
		set := make(map[string]bool, len(known))
		for _, k := range known {
			set[k] = true
		}
		for _, u := range used {
			if !set[u] {
				defects = append(defects, Defect{
					Rule:    DanglingReference,
					Subject: u,
					Detail:  fmt.Sprintf("%s %q is not defined in %s", ref.Name, u, label),
				})
			}
		}
	}
	return defects
}
