package feed

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

var activityPattern = regexp.MustCompile(`activity:(\d+)`)

// TopicMatcher decides which topics a post text is relevant to
type TopicMatcher interface {
	Match(text string) []string
}

// Options tune the scroll loop
type Options struct {
	ScrollPause     time.Duration
	Timeout         time.Duration // since the last accepted post
	MaxScrolls      int
	StagnationLimit int
	ScrollIntoView  bool
}

// DefaultOptions returns the loop settings used when none are configured
func DefaultOptions() Options {
	return Options{
		ScrollPause:     2 * time.Second,
		Timeout:         120 * time.Second,
		MaxScrolls:      50,
		StagnationLimit: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ScrollPause <= 0 {
		o.ScrollPause = d.ScrollPause
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxScrolls <= 0 {
		o.MaxScrolls = d.MaxScrolls
	}
	if o.StagnationLimit <= 0 {
		o.StagnationLimit = d.StagnationLimit
	}
	return o
}

// Session is the per-call scroll state
type Session struct {
	processed   map[string]struct{}
	unique      int
	scrolls     int
	stagnant    int
	lastHeight  int64
	lastNewPost time.Time
}

func newSession(start time.Time) *Session {
	return &Session{
		processed:   make(map[string]struct{}),
		lastNewPost: start,
	}
}

// seen marks keys as processed and reports whether any already was.
// Reposts carry a new activity id over the same text.
func (s *Session) seen(keys ...string) bool {
	dup := false
	for _, key := range keys {
		if _, ok := s.processed[key]; ok {
			dup = true
		}
		s.processed[key] = struct{}{}
	}
	if !dup {
		s.unique++
	}
	return dup
}


// Result is what a scrape accumulated before it stopped
type Result struct {
	Posts      []models.Post
	StopReason models.StopReason
	Scrolls    int
	Processed  int
	Skipped    int
	Duration   time.Duration
}

// Scraper scrolls a feed page collecting posts relevant to a topic list
type Scraper struct {
	matcher TopicMatcher
	opts    Options
	log     *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScraper creates a new feed scraper
func NewScraper(matcher TopicMatcher, opts Options, log *logger.Logger) *Scraper {
	return &Scraper{
		matcher: matcher,
		opts:    opts.withDefaults(),
		log:     log.WithComponent("scraper"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// WithClock replaces the time source and sleeper, used by tests
func (s *Scraper) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Scraper {
	s.now = now
	s.sleep = sleep
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scrape collects up to target relevant posts from page.
// Extraction problems on individual posts are logged and skipped; the
// returned Result always holds whatever was gathered before stopping.
func (s *Scraper) Scrape(ctx context.Context, page Page, target int) (*Result, error) {
	if target <= 0 {
		return nil, fmt.Errorf("target must be positive, got %d", target)
	}

	start := s.now()
	session := newSession(start)
	result := &Result{}

	finish := func(reason models.StopReason) (*Result, error) {
		result.StopReason = reason
		result.Scrolls = session.scrolls
		result.Processed = session.unique
		result.Duration = s.now().Sub(start)
		s.log.Info().
			Int("collected", len(result.Posts)).
			Int("target", target).
			Int("scrolls", session.scrolls).
			Str("stop_reason", string(reason)).
			Msg("Scrape finished")
		return result, nil
	}

	if h, err := page.Height(); err == nil {
		session.lastHeight = h
	}

	for {
		if ctx.Err() != nil {
			return finish(models.StopCancelled)
		}

		nodes, err := page.FindAll(PostSelector)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to query feed posts")
			return finish(models.StopPageError)
		}

		for _, node := range nodes {
			if len(result.Posts) >= target || ctx.Err() != nil {
				break
			}
			// slow node reads can use up the timeout within one batch
			if s.now().Sub(session.lastNewPost) >= s.opts.Timeout {
				break
			}
			post, ok := s.process(session, node)
			if !ok {
				result.Skipped++
				continue
			}
			result.Posts = append(result.Posts, *post)
			session.lastNewPost = s.now()
			s.log.Debug().
				Str("dedup_key", post.DedupKey()).
				Strs("topics", post.MatchedTopics).
				Int("collected", len(result.Posts)).
				Msg("Collected post")
		}

		if len(result.Posts) >= target {
			return finish(models.StopTargetReached)
		}
		if ctx.Err() != nil {
			return finish(models.StopCancelled)
		}
		if s.now().Sub(session.lastNewPost) >= s.opts.Timeout {
			return finish(models.StopTimeout)
		}
		if session.scrolls >= s.opts.MaxScrolls {
			return finish(models.StopMaxScrolls)
		}

		if err := page.ScrollToBottom(); err != nil {
			s.log.Error().Err(err).Msg("Failed to scroll feed")
			return finish(models.StopPageError)
		}
		session.scrolls++

		if err := s.sleep(ctx, s.opts.ScrollPause); err != nil {
			return finish(models.StopCancelled)
		}

		height, err := page.Height()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to read page height")
			continue
		}
		if height == session.lastHeight {
			session.stagnant++
			if session.stagnant >= s.opts.StagnationLimit {
				return finish(models.StopStagnation)
			}
		} else {
			session.stagnant = 0
			session.lastHeight = height
		}
	}
}

// process extracts one node. It returns false for nodes that are empty,
// already seen, irrelevant or unreadable.
func (s *Scraper) process(session *Session, node Element) (*models.Post, bool) {
	text, err := extractText(node)
	if err != nil {
		s.log.Debug().Err(err).Msg("Skipping post with unreadable text")
		return nil, false
	}
	if text == "" {
		return nil, false
	}

	id := extractID(node)
	if session.seen(models.DedupKeys(id, text)...) {
		return nil, false
	}

	matched := s.matcher.Match(text)
	if len(matched) == 0 {
		return nil, false
	}

	if s.opts.ScrollIntoView {
		if err := node.ScrollIntoView(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to scroll post into view")
		}
	}

	now := s.now()
	post := &models.Post{
		Text:          text,
		Metrics:       extractMetrics(node),
		Timestamp:     extractTimestamp(node, now),
		URL:           extractPermalink(node),
		LinkedURL:     extractLinkedURL(node),
		MatchedTopics: matched,
		ScrapedAt:     now,
	}
	if id != "" {
		post.ID = &id
	}
	return post, true
}

func extractText(node Element) (string, error) {
	spans, err := node.FindAll(TextSelector)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(spans))
	for _, span := range spans {
		t, err := span.Text()
		if err != nil {
			return "", err
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func extractID(node Element) string {
	anchors, err := node.FindAll(PermalinkSelector)
	if err == nil && len(anchors) > 0 {
		href, _ := anchors[0].Attribute("href")
		if m := activityPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	urn, _ := node.Attribute("data-urn")
	if m := activityPattern.FindStringSubmatch(urn); m != nil {
		return m[1]
	}
	return ""
}

func extractPermalink(node Element) *string {
	for _, selector := range URLSelectors {
		anchors, err := node.FindAll(selector)
		if err != nil {
			continue
		}
		for _, a := range anchors {
			href, err := a.Attribute("href")
			if err != nil || !strings.Contains(href, "activity") {
				continue
			}
			u := absoluteURL(href)
			return &u
		}
	}
	return nil
}

func extractLinkedURL(node Element) *string {
	anchors, err := node.FindAll(AnchorSelector)
	if err != nil || len(anchors) == 0 {
		return nil
	}
	href, err := anchors[0].Attribute("href")
	if err != nil || href == "" {
		return nil
	}
	u := absoluteURL(href)
	return &u
}

func extractTimestamp(node Element, now time.Time) *time.Time {
	spans, err := node.FindAll(RelativeTimeSelector)
	if err != nil || len(spans) == 0 {
		return nil
	}
	text, err := spans[0].Text()
	if err != nil {
		return nil
	}
	return ParseRelativeTime(text, now)
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return linkedInOrigin + href
	}
	return href
}
