package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Metrics holds the engagement counts shown under a feed post
type Metrics struct {
	Reactions int `json:"reactions"`
	Comments  int `json:"comments"`
	Shares    int `json:"shares"`
}

// Total returns the sum of all engagement counts
func (m Metrics) Total() int {
	return m.Reactions + m.Comments + m.Shares
}

// Post is a relevant feed post extracted during a scrape.
// Values are not modified after extraction.
type Post struct {
	ID            *string    `json:"post_id"`
	Text          string     `json:"text"`
	Timestamp     *time.Time `json:"date"`
	Metrics       Metrics    `json:"metrics"`
	URL           *string    `json:"url"`
	LinkedURL     *string    `json:"linked_url"`
	MatchedTopics []string   `json:"matched_topics"`
	ScrapedAt     time.Time  `json:"scraped_at"`
}

// DedupKey identifies a post across scrolls: the feed activity id when
// known, otherwise a hash of the normalized text.
func (p *Post) DedupKey() string {
	if p.ID != nil && *p.ID != "" {
		return IDKey(*p.ID)
	}
	return TextKey(p.Text)
}

// DedupKeys returns every key the post is known by. A post repeats
// another when any key matches, so reposts of the same text collapse.
func (p *Post) DedupKeys() []string {
	id := ""
	if p.ID != nil {
		id = *p.ID
	}
	return DedupKeys(id, p.Text)
}

// DedupKeys returns the id key, when id is set, and the text key
func DedupKeys(id, text string) []string {
	if id == "" {
		return []string{TextKey(text)}
	}
	return []string{IDKey(id), TextKey(text)}
}

// IDKey builds a dedup key from a feed activity id
func IDKey(id string) string {
	return "id:" + id
}

// TextKey builds a dedup key from post text
func TextKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "text:" + hex.EncodeToString(sum[:])
}
