package hashnode

import (
	"fmt"
	"regexp"
	"strings"
)

// Default article length bounds in words
const (
	DefaultMinWords = 800
	DefaultMaxWords = 1500
)

// Validation error codes
const (
	CodeTooShort = "CONTENT_TOO_SHORT"
	CodeTooLong  = "CONTENT_TOO_LONG"
	CodeMissing  = "MISSING_FIELDS"
)

var (
	codeBlockPattern  = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodePattern = regexp.MustCompile("`[^`]*`")
	imagePattern      = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	htmlPattern       = regexp.MustCompile(`<[^>]+>`)
	markPattern       = regexp.MustCompile(`[#*_~]`)
)

// ValidationError describes content outside the allowed length
type ValidationError struct {
	Code      string
	WordCount int
	Min       int
	Max       int
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeTooShort:
		return fmt.Sprintf("content is too short: %d words, minimum %d", e.WordCount, e.Min)
	case CodeTooLong:
		return fmt.Sprintf("content is too long: %d words, maximum %d", e.WordCount, e.Max)
	}
	return "content validation failed"
}

// CountWords counts prose words in markdown, ignoring code, link targets,
// images, html tags and emphasis marks
func CountWords(text string) int {
	text = codeBlockPattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "")
	text = imagePattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = htmlPattern.ReplaceAllString(text, "")
	text = markPattern.ReplaceAllString(text, "")
	return len(strings.Fields(text))
}

// Validate checks that content is between min and max words inclusive
func Validate(content string, min, max int) (int, error) {
	if min <= 0 {
		min = DefaultMinWords
	}
	if max <= 0 {
		max = DefaultMaxWords
	}

	count := CountWords(content)
	switch {
	case count < min:
		return count, &ValidationError{Code: CodeTooShort, WordCount: count, Min: min, Max: max}
	case count > max:
		return count, &ValidationError{Code: CodeTooLong, WordCount: count, Min: min, Max: max}
	}
	return count, nil
}
