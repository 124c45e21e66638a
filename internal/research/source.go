package research

import (
	"context"
	"sort"
	"time"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

// Source produces reference articles for post generation
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Fetch retrieves recent references
	Fetch(ctx context.Context) ([]models.Reference, error)
}

// Relevance filters references by topic
type Relevance interface {
	Match(text string) []string
}

// Collector gathers references from several sources at once
type Collector struct {
	sources []Source
	max     int
	log     *logger.Logger
}

// NewCollector creates a collector returning at most max references
func NewCollector(max int, log *logger.Logger, sources ...Source) *Collector {
	if max <= 0 {
		max = 5
	}
	return &Collector{
		sources: sources,
		max:     max,
		log:     log.WithComponent("research"),
	}
}

// Register adds a source to the collector
func (c *Collector) Register(s Source) {
	c.sources = append(c.sources, s)
}

// Collect fetches all sources concurrently and returns the newest
// relevant references, deduplicated by link. Failing sources are logged
// and skipped.
func (c *Collector) Collect(ctx context.Context, relevance Relevance) []models.Reference {
	type result struct {
		name string
		refs []models.Reference
		err  error
	}

	results := make(chan result, len(c.sources))
	for _, s := range c.sources {
		go func(s Source) {
			refs, err := s.Fetch(ctx)
			results <- result{name: s.Name(), refs: refs, err: err}
		}(s)
	}

	seen := map[string]bool{}
	var all []models.Reference
	for range c.sources {
		r := <-results
		if r.err != nil {
			c.log.Warn().Err(r.err).Str("source", r.name).Msg("Failed to fetch references")
			continue
		}
		for _, ref := range r.refs {
			if ref.Link == "" || seen[ref.Link] {
				continue
			}
			if relevance != nil && len(relevance.Match(ref.Title+" "+ref.Summary)) == 0 {
				continue
			}
			seen[ref.Link] = true
			all = append(all, ref)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.After(all[j].PublishedAt)
	})
	if len(all) > c.max {
		all = all[:c.max]
	}

	c.log.Info().Int("count", len(all)).Int("sources", len(c.sources)).Msg("Collected references")
	return all
}

// fresh reports whether t is within maxAge of now; zero maxAge keeps everything
func fresh(t, now time.Time, maxAge time.Duration) bool {
	return maxAge <= 0 || now.Sub(t) <= maxAge
}
