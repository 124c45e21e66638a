package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
	"github.com/linkedin-pipeline/pkg/ratelimit"
)

// RSS reads references from a single feed
type RSS struct {
	name    string
	url     string
	maxAge  time.Duration
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	now     func() time.Time
	log     *logger.Logger
}

// NewRSS creates a source for one feed
func NewRSS(feed config.RSSFeed, maxAge time.Duration, limiter *ratelimit.MultiLimiter, log *logger.Logger) *RSS {
	return &RSS{
		name:    feed.Name,
		url:     feed.URL,
		maxAge:  maxAge,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		now:     time.Now,
		log:     log.WithSource("rss", feed.Name),
	}
}

// NewRSSSources creates one source per configured feed
func NewRSSSources(cfg config.ResearchConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []Source {
	maxAge := config.Duration(cfg.MaxAge, 7*24*time.Hour)
	sources := make([]Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, NewRSS(feed, maxAge, limiter, log))
	}
	return sources
}

// Name returns the feed name
func (s *RSS) Name() string {
	return s.name
}

// Fetch retrieves recent items from the feed
func (s *RSS) Fetch(ctx context.Context) ([]models.Reference, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, err
	}

	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	now := s.now()
	refs := make([]models.Reference, 0, len(feed.Items))
	for _, item := range feed.Items {
		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}
		if !fresh(publishedAt, now, s.maxAge) {
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		refs = append(refs, models.Reference{
			Title:       cleanText(item.Title),
			Link:        item.Link,
			Summary:     cleanText(summary),
			Source:      s.name,
			PublishedAt: publishedAt,
		})
	}

	s.log.Info().Int("count", len(refs)).Msg("Fetched RSS references")
	return refs, nil
}

// cleanText strips markup and collapses whitespace
func cleanText(text string) string {
	if strings.ContainsAny(text, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

var _ Source = (*RSS)(nil)
