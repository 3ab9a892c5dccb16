// Package docs holds the topics printed by `docchain docs`.
package docs

import (
	"fmt"
	"strings"
)

// Topic holds a single documentation article.
type Topic struct {
	Name    string // slug used as CLI argument
	Title   string
	Summary string // one line, shown in the topic list
	Content string // plain text, no ANSI
}

// All returns every topic in display order.
func All() []Topic {
	return topics
}

// Get looks up a topic by name, case-insensitively. A unique prefix also
// matches, so "exec" finds "execution".
func Get(name string) (Topic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var matches []Topic
	for _, t := range topics {
		if t.Name == name {
			return t, nil
		}
		if name != "" && strings.HasPrefix(t.Name, name) {
			matches = append(matches, t)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return Topic{}, fmt.Errorf("unknown topic %q, run 'docchain docs' to list available topics (%s)", name, strings.Join(names(), ", "))
}

func names() []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.Name
	}
	return out
}
