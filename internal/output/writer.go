package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

// Metadata describes a scrape output file
type Metadata struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	TotalPosts   int       `json:"total_posts"`
	UniqueTopics []string  `json:"unique_topics"`
	AvgReactions float64   `json:"avg_reactions"`
	StopReason   string    `json:"stop_reason,omitempty"`
}

// File is the on-disk document
type File struct {
	Metadata Metadata      `json:"metadata"`
	Posts    []models.Post `json:"posts"`
}

// Writer saves scrape results as timestamped JSON files
type Writer struct {
	dir string
	now func() time.Time
	log *logger.Logger
}

// NewWriter creates a writer that stores files under dir
func NewWriter(dir string, log *logger.Logger) *Writer {
	return &Writer{
		dir: dir,
		now: time.Now,
		log: log.WithComponent("output"),
	}
}

// Write dedupes posts and writes them with computed metadata.
// It returns the path of the created file.
func (w *Writer) Write(runID string, posts []models.Post, stopReason models.StopReason) (string, *File, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	now := w.now()
	unique := Dedupe(posts)
	doc := &File{
		Metadata: Summarize(unique),
		Posts:    unique,
	}
	doc.Metadata.RunID = runID
	doc.Metadata.GeneratedAt = now
	doc.Metadata.StopReason = string(stopReason)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", nil, fmt.Errorf("failed to encode posts: %w", err)
	}

	path := filepath.Join(w.dir, FileName(now))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write output file: %w", err)
	}

	w.log.Info().
		Str("path", path).
		Int("posts", len(unique)).
		Int("duplicates", len(posts)-len(unique)).
		Msg("Saved scrape output")
	return path, doc, nil
}

// FileName returns the output file name for a scrape finished at t
func FileName(t time.Time) string {
	return fmt.Sprintf("linkedin_posts_%s.json", t.Format("20060102_150405"))
}

// Dedupe keeps the first post for each id or text
func Dedupe(posts []models.Post) []models.Post {
	seen := make(map[string]bool, len(posts))
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		dup := false
		for _, key := range p.DedupKeys() {
			if seen[key] {
				dup = true
			}
			seen[key] = true
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// Summarize computes post count, distinct topics and average reactions
func Summarize(posts []models.Post) Metadata {
	md := Metadata{TotalPosts: len(posts), UniqueTopics: []string{}}
	seen := map[string]bool{}
	total := 0
	for _, p := range posts {
		total += p.Metrics.Reactions
		for _, t := range p.MatchedTopics {
			if !seen[t] {
				seen[t] = true
				md.UniqueTopics = append(md.UniqueTopics, t)
			}
		}
	}
	if len(posts) > 0 {
		md.AvgReactions = math.Round(float64(total)/float64(len(posts))*100) / 100
	}
	return md
}
