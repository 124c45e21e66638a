package feed

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(mo|s|m|h|d|w|y)(?:[^a-z]|$)`)

var relativeUnits = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour,
	"y":  365 * 24 * time.Hour,
}

// ParseRelativeTime turns a feed age label like "3h" or "2mo •" into an
// absolute time relative to now. It returns nil when the label is not
// recognized.
func ParseRelativeTime(text string, now time.Time) *time.Time {
	m := relativePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	unit, ok := relativeUnits[strings.ToLower(m[2])]
	if !ok {
		return nil
	}
	t := now.Add(-time.Duration(n) * unit)
	return &t
}
