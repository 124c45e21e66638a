package feed

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/linkedin-pipeline/internal/models"
)

var countPattern = regexp.MustCompile(`(\d[\d,.]*)\s*([KkMm])?`)

// ParseCount converts a display count such as "1,234", "1.2K" or "3M"
// into an integer. Empty or unparsable input yields 0.
func ParseCount(s string) int {
	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || f < 0 {
		return 0
	}

	switch strings.ToLower(m[2]) {
	case "k":
		f *= 1e3
	case "m":
		f *= 1e6
	}

	if f >= math.MaxInt {
		return math.MaxInt
	}
	// absorb float error so 1.2K is 1200, not 1199
	return int(math.Floor(f + 1e-6))
}

// extractMetrics reads reaction, comment and share counts from a post node.
// Missing elements leave the corresponding count at zero.
func extractMetrics(node Element) models.Metrics {
	var m models.Metrics

	if buttons, err := node.FindAll(ReactionsSelector); err == nil && len(buttons) > 0 {
		label, _ := buttons[0].Attribute("aria-label")
		m.Reactions = ParseCount(label)
		if m.Reactions == 0 {
			text, _ := buttons[0].Text()
			m.Reactions = ParseCount(text)
		}
	}

	items, err := node.FindAll(CountsItemSelector)
	if err != nil {
		return m
	}
	for _, item := range items {
		text, err := item.Text()
		if err != nil {
			continue
		}
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "comment"):
			m.Comments = ParseCount(text)
		case strings.Contains(lower, "repost"), strings.Contains(lower, "share"):
			m.Shares = ParseCount(text)
		}
	}

	return m
}
