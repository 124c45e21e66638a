package topics

import (
	"strings"
)

// Matcher finds relevance topics mentioned in post text.
// Matching is a case-insensitive substring test.
type Matcher struct {
	topics []string
	lower  []string
}

// NewMatcher creates a matcher for the given topics, ignoring blanks
func NewMatcher(topics []string) *Matcher {
	m := &Matcher{}
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		m.topics = append(m.topics, t)
		m.lower = append(m.lower, strings.ToLower(t))
	}
	return m
}

// Match returns every topic contained in text, in topic order
func (m *Matcher) Match(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var matched []string
	for i, t := range m.lower {
		if strings.Contains(lower, t) {
			matched = append(matched, m.topics[i])
		}
	}
	return matched
}

// Relevant reports whether text mentions any topic
func (m *Matcher) Relevant(text string) bool {
	return len(m.Match(text)) > 0
}

// Topics returns the configured topics
func (m *Matcher) Topics() []string {
	return append([]string(nil), m.topics...)
}
