// Package fence finds fenced code blocks in markdown text.
package fence

import (
	"regexp"
	"strings"
)

// Block is one fenced region. Start and End are 0-based line indices of the
// opening and closing fence lines; an unclosed block ends at the last line.
type Block struct {
	Info    string // language / info string after the opening fence, e.g. "mermaid"
	Start   int
	End     int
	Closed  bool
	Content string // text between the fences
}

var fenceOpenRe = regexp.MustCompile("^(`{3,}|~{3,})\\s*(.*)$")

// Scan returns the fenced blocks of text in order of appearance.
func Scan(text string) []Block {
	return ScanLines(strings.Split(text, "\n"))
}

// ScanLines is Scan over pre-split lines.
func ScanLines(lines []string) []Block {
	var blocks []Block
	var current *Block
	var marker string
	var buf []string

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if current != nil {
			if strings.HasPrefix(trimmed, marker) && strings.Trim(trimmed, marker[:1]) == "" {
				current.End = i
				current.Closed = true
				current.Content = strings.Join(buf, "\n")
				blocks = append(blocks, *current)
				current = nil
				continue
			}
			buf = append(buf, line)
			continue
		}
		if m := fenceOpenRe.FindStringSubmatch(trimmed); m != nil {
			current = &Block{Info: firstWord(m[2]), Start: i}
			marker = m[1]
			buf = buf[:0]
		}
	}

	if current != nil {
		current.End = len(lines) - 1
		current.Content = strings.Join(buf, "\n")
		blocks = append(blocks, *current)
	}
	return blocks
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Mask reports, per line, whether the line is part of a fenced block
// (fence lines included).
func Mask(lines []string) []bool {
	mask := make([]bool, len(lines))
	for _, b := range ScanLines(lines) {
		for i := b.Start; i <= b.End && i < len(mask); i++ {
			mask[i] = true
		}
	}
	return mask
}

// Count returns how many blocks carry the given info string.
func Count(blocks []Block, info string) int {
	n := 0
	for _, b := range blocks {
		if strings.EqualFold(b.Info, info) {
			n++
		}
	}
	return n
}
