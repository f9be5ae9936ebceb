package feed

import (
	"fmt"
	"strings"
)

const maxPatternSegments = 16

// SubjectFilter is the allowlist of subject patterns the router accepts.
// Patterns are dot-separated; a "*" segment matches exactly one subject
// segment and a trailing ">" matches any remainder.
type SubjectFilter struct {
	patterns [][]string
}

// DefaultFilter covers the fixed subject set the engine cares about: agent
// lifecycle, tool-use hooks, job lifecycle, and mutation notifications.
func DefaultFilter() *SubjectFilter {
	f, _ := NewSubjectFilter([]string{
		"agent.>",
		"hook.>",
		"job.>",
		"issue.>",
		"decision.>",
	})
	return f
}

func NewSubjectFilter(patterns []string) (*SubjectFilter, error) {
	f := &SubjectFilter{}
	for _, p := range patterns {
		segs, err := parsePattern(p)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, segs)
	}
	return f, nil
}

func parsePattern(pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty subject pattern")
	}
	segs := strings.Split(pattern, ".")
	if len(segs) > maxPatternSegments {
		return nil, fmt.Errorf("pattern too complex: %d segments exceeds limit of %d", len(segs), maxPatternSegments)
	}
	for i, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("pattern %q: empty segment", pattern)
		}
		if s == ">" && i != len(segs)-1 {
			return nil, fmt.Errorf("pattern %q: %q only valid as final segment", pattern, ">")
		}
	}
	return segs, nil
}

// Match reports whether any allowlist pattern matches the subject. An empty
// subject matches nothing.
func (f *SubjectFilter) Match(subject string) bool {
	if subject == "" {
		return false
	}
	segs := strings.Split(subject, ".")
	for _, p := range f.patterns {
		if matchSegments(p, segs) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, subject []string) bool {
	for i, p := range pattern {
		if p == ">" {
			return len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if p != "*" && p != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}
