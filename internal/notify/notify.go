package notify

import (
	"context"
	"strings"
)

// Result reports the outcome of a best-effort notification
type Result struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{Sent: false, Error: err.Error()}
}

// Message is a draft presented to a reviewer
type Message struct {
	DraftID uint
	Title   string
	Content string
}

// Notifier delivers draft messages to a reviewer
type Notifier interface {
	Notify(ctx context.Context, msg Message) Result
}

// paragraphs drops blank lines and separates the rest with one empty line
func paragraphs(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n\n")
}
