package models

import (
	"time"
)

// Reference is an external article used as research context for a draft
type Reference struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}
