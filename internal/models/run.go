package models

import (
	"time"
)

// StopReason records why a scrape loop ended
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopStagnation    StopReason = "stagnation"
	StopMaxScrolls    StopReason = "max_scrolls"
	StopTimeout       StopReason = "timeout"
	StopCancelled     StopReason = "cancelled"
	StopPageError     StopReason = "page_error"
)

// ScrapeRun is one invocation of the feed scraper
type ScrapeRun struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Target     int        `json:"target"`
	Collected  int        `json:"collected"`
	Scrolls    int        `json:"scrolls"`
	StopReason StopReason `gorm:"size:32" json:"stop_reason"`
	OutputFile string     `json:"output_file"`
	Error      string     `json:"error"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// ScrapedPost is the persisted form of a Post
type ScrapedPost struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	RunID         string      `gorm:"size:36;index" json:"run_id"`
	DedupKey      string      `gorm:"uniqueIndex;size:80;not null" json:"dedup_key"`
	PostID        string      `gorm:"size:64" json:"post_id"`
	Text          string      `gorm:"type:text" json:"text"`
	URL           string      `json:"url"`
	LinkedURL     string      `json:"linked_url"`
	Reactions     int         `json:"reactions"`
	Comments      int         `json:"comments"`
	Shares        int         `json:"shares"`
	MatchedTopics StringSlice `gorm:"type:json" json:"matched_topics"`
	PostedAt      *time.Time  `json:"posted_at"`
	ScrapedAt     time.Time   `gorm:"index" json:"scraped_at"`
}

// NewScrapedPost converts a scraped Post into its stored row
func NewScrapedPost(runID string, p Post) ScrapedPost {
	row := ScrapedPost{
		RunID:         runID,
		DedupKey:      p.DedupKey(),
		Text:          p.Text,
		Reactions:     p.Metrics.Reactions,
		Comments:      p.Metrics.Comments,
		Shares:        p.Metrics.Shares,
		MatchedTopics: StringSlice(p.MatchedTopics),
		PostedAt:      p.Timestamp,
		ScrapedAt:     p.ScrapedAt,
	}
	if p.ID != nil {
		row.PostID = *p.ID
	}
	if p.URL != nil {
		row.URL = *p.URL
	}
	if p.LinkedURL != nil {
		row.LinkedURL = *p.LinkedURL
	}
	return row
}

// Engagement returns the total engagement count
func (s *ScrapedPost) Engagement() int {
	return s.Reactions + s.Comments + s.Shares
}
