package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jorge-barreto/docchain/internal/fence"
	"github.com/jorge-barreto/docchain/internal/registry"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+\S`)

// placeholderRe matches bodies that stand in for an omitted section.
var placeholderRe = regexp.MustCompile(`(?i)^(n/?a|none|not applicable|tbd|to be determined|\(?omitted\)?|intentionally (left )?blank|-+|this section (is )?(intentionally )?(omitted|left blank|not applicable))\.?$`)

type heading struct {
	line  int
	level int
	text  string
}

func isFenceLine(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "```") || strings.HasPrefix(s, "~~~")
}

func firstNonBlank(lines []string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			return i
		}
	}
	return -1
}

func lastNonBlank(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return i
		}
	}
	return -1
}

// unwrap strips a code fence wrapped around the whole document. It reports
// whether a wrapper (leading, trailing or both) was found.
func unwrap(lines []string) ([]string, bool) {
	found := false
	if f := firstNonBlank(lines); f >= 0 && isFenceLine(lines[f]) {
		lines = append(append([]string(nil), lines[:f]...), lines[f+1:]...)
		found = true
	}
	if l := lastNonBlank(lines); l >= 0 && strings.TrimSpace(lines[l]) == "```" {
		blocks := fence.ScanLines(lines)
		if n := len(blocks); n > 0 && !blocks[n-1].Closed && blocks[n-1].Start == l {
			lines = lines[:l]
			found = true
		}
	}
	return lines, found
}

func collectHeadings(lines []string, mask []bool) []heading {
	var hs []heading
	for i, l := range lines {
		if mask[i] {
			continue
		}
		m := headingRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		hs = append(hs, heading{line: i, level: len(m[1]), text: strings.TrimSpace(l)})
	}
	return hs
}

func validateMarkdown(c registry.Contract, raw string) []Defect {
	var defects []Defect
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	lines, wrapped := unwrap(lines)
	if wrapped {
		defects = append(defects, Defect{
			Rule:   UnexpectedCodeFence,
			Detail: "the document must not be wrapped in a code fence; return raw markdown",
		})
	}

	first := firstNonBlank(lines)
	if first < 0 {
		return append(defects, Defect{Rule: WrongHeadingText, Subject: c.Title, Detail: "output is empty"})
	}

	mask := fence.Mask(lines)
	headings := collectHeadings(lines, mask)

	titleLine := -1
	if c.Title != "" {
		got := strings.TrimSpace(lines[first])
		if got == c.Title {
			titleLine = first
		} else {
			defects = append(defects, Defect{
				Rule:    WrongHeadingText,
				Subject: c.Title,
				Detail:  fmt.Sprintf("document must begin with %q, found %q", c.Title, truncate(got, 80)),
			})
		}
	}

	headerStart := titleLine
	if headerStart < 0 && c.Title != "" {
		headerStart = first
	}
	defects = append(defects, checkHeader(c, lines, mask, headerStart)...)
	defects = append(defects, checkSections(c, lines, headings, titleLine)...)
	defects = append(defects, checkPatterns(c, lines, mask)...)
	return defects
}

// checkHeader looks for each header label between the title line and the
// next heading. start is -1 for contracts without a title.
func checkHeader(c registry.Contract, lines []string, mask []bool, start int) []Defect {
	if len(c.Header) == 0 {
		return nil
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if !mask[i] && headingRe.MatchString(lines[i]) {
			end = i
			break
		}
	}
	region := strings.Join(lines[start+1:end], "\n")
	var defects []Defect
	for _, label := range c.Header {
		if !strings.Contains(region, label) {
			defects = append(defects, Defect{
				Rule:    MissingField,
				Subject: label,
				Detail:  fmt.Sprintf("header line %q is required before the first section", label),
			})
		}
	}
	return defects
}

func checkSections(c registry.Contract, lines []string, headings []heading, titleLine int) []Defect {
	var defects []Defect
	last := -1
	lastHeading := ""
	for _, s := range c.Sections {
		pos := -1
		for i, h := range headings {
			if h.line != titleLine && s.Matches(h.text) {
				pos = i
				break
			}
		}
		if pos < 0 {
			if !s.Optional {
				defects = append(defects, Defect{
					Rule:    MissingSection,
					Subject: s.Heading,
					Detail:  fmt.Sprintf("required section heading %q not found", s.Heading),
				})
			}
			continue
		}
		if pos < last {
			defects = append(defects, Defect{
				Rule:    SectionOutOfOrder,
				Subject: s.Heading,
				Detail:  fmt.Sprintf("%q must come after %q", s.Heading, lastHeading),
			})
		} else {
			last = pos
			lastHeading = s.Heading
		}
		if s.Optional && isPlaceholder(sectionBody(lines, headings, pos)) {
			defects = append(defects, Defect{
				Rule:    PlaceholderSection,
				Subject: s.Heading,
				Detail:  "omit this section entirely instead of writing placeholder text",
			})
		}
	}
	return defects
}

// sectionBody returns the text under headings[pos] up to the next heading of
// the same or a higher level.
func sectionBody(lines []string, headings []heading, pos int) string {
	h := headings[pos]
	end := len(lines)
	for _, next := range headings[pos+1:] {
		if next.level <= h.level {
			end = next.line
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[h.line+1:end], "\n"))
}

func isPlaceholder(body string) bool {
	body = strings.Trim(body, " \t\n*_>`")
	if body == "" {
		return true
	}
	if strings.Contains(body, "\n") {
		return false
	}
	if placeholderRe.MatchString(body) {
		return true
	}
	lower := strings.ToLower(body)
	return len(body) < 120 && (strings.HasPrefix(lower, "no ") || strings.HasPrefix(lower, "none "))
}

func checkPatterns(c registry.Contract, lines []string, mask []bool) []Defect {
	if len(c.Patterns) == 0 {
		return nil
	}
	var outside []string
	for i, l := range lines {
		if !mask[i] {
			outside = append(outside, l)
		}
	}
	prose := strings.Join(outside, "\n")
	blocks := fence.ScanLines(lines)

	var defects []Defect
	for _, p := range c.Patterns {
		var n int
		if p.Fence != "" {
			n = fence.Count(blocks, p.Fence)
		} else {
			n = len(p.Re().FindAllStringIndex(prose, -1))
		}
		if n < p.Min {
			defects = append(defects, Defect{
				Rule:    MissingSection,
				Subject: p.Name,
				Detail:  fmt.Sprintf("found %d, need at least %d", n, p.Min),
			})
		}
	}
	return defects
}

// truncate shortens s to at most n runes, never splitting a character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
