package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]Element
	findErr  error
	scrolled bool
}

func (e *fakeElement) FindAll(selector string) ([]Element, error) {
	if e.findErr != nil {
		return nil, e.findErr
	}
	return e.children[selector], nil
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) ScrollIntoView() error {
	e.scrolled = true
	return nil
}

func textNode(s string) Element { return &fakeElement{text: s} }

func anchor(href string) Element {
	return &fakeElement{attrs: map[string]string{"href": href}}
}

// feedPost builds a post node; an empty id leaves the permalink out
func feedPost(id, text string) *fakeElement {
	e := &fakeElement{children: map[string][]Element{
		TextSelector: {textNode(text)},
	}}
	if id != "" {
		href := fmt.Sprintf("/feed/update/urn:li:activity:%s/", id)
		e.children[PermalinkSelector] = []Element{anchor(href)}
		e.children[URLSelectors[1]] = []Element{anchor("/in/someone"), anchor(href)}
		e.children[AnchorSelector] = []Element{anchor("https://example.com/article")}
	}
	return e
}

// fakePage reveals one batch per scroll; once batches run out it either
// stops growing or, when grow is set, keeps appending generated posts.
type fakePage struct {
	batches  [][]Element
	revealed int
	grow     func(n int) Element
	extra    []Element
	findErr  error
	scrolls  int
}

func (p *fakePage) FindAll(selector string) ([]Element, error) {
	if p.findErr != nil {
		return nil, p.findErr
	}
	if selector != PostSelector {
		return nil, nil
	}
	var out []Element
	for i := 0; i < p.revealed && i < len(p.batches); i++ {
		out = append(out, p.batches[i]...)
	}
	return append(out, p.extra...), nil
}

func (p *fakePage) ScrollToBottom() error {
	p.scrolls++
	if p.revealed < len(p.batches) {
		p.revealed++
	} else if p.grow != nil {
		p.extra = append(p.extra, p.grow(len(p.extra)))
	}
	return nil
}

func (p *fakePage) Height() (int64, error) {
	return int64(p.revealed*1000 + len(p.extra)*500), nil
}

type substringMatcher []string

func (m substringMatcher) Match(text string) []string {
	var out []string
	lower := strings.ToLower(text)
	for _, topic := range m {
		if strings.Contains(lower, topic) {
			out = append(out, topic)
		}
	}
	return out
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func newTestScraper(opts Options) (*Scraper, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := NewScraper(substringMatcher{"llm", "rag"}, opts, logger.Nop()).
		WithClock(clock.Now, clock.Sleep)
	return s, clock
}

func TestScrapeReachesTargetWithoutDuplicates(t *testing.T) {
	page := &fakePage{
		revealed: 1,
		batches: [][]Element{
			{feedPost("1", "LLM agents in practice"), feedPost("2", "Gardening tips")},
			{feedPost("3", "RAG pipelines"), feedPost("", "Another LLM take")},
			{feedPost("4", "More RAG")},
		},
	}
	s, _ := newTestScraper(Options{})

	res, err := s.Scrape(context.Background(), page, 3)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopTargetReached {
		t.Fatalf("expected target_reached, got %s", res.StopReason)
	}
	if len(res.Posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(res.Posts))
	}

	keys := map[string]bool{}
	for _, p := range res.Posts {
		if keys[p.DedupKey()] {
			t.Fatalf("duplicate post %q", p.DedupKey())
		}
		keys[p.DedupKey()] = true
		if len(p.MatchedTopics) == 0 {
			t.Fatalf("irrelevant post collected: %q", p.Text)
		}
	}
	if res.Posts[2].ID != nil {
		t.Fatalf("expected id-less post to have nil ID")
	}
}

func TestScrapeNeverExceedsTarget(t *testing.T) {
	page := &fakePage{
		revealed: 1,
		batches: [][]Element{{
			feedPost("1", "llm one"), feedPost("2", "llm two"), feedPost("3", "llm three"),
		}},
	}
	s, _ := newTestScraper(Options{})

	res, _ := s.Scrape(context.Background(), page, 2)
	if len(res.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(res.Posts))
	}
	if page.scrolls != 0 {
		t.Fatalf("expected no scrolling once target met, got %d", page.scrolls)
	}
}

func TestScrapeStopsOnStagnation(t *testing.T) {
	page := &fakePage{
		revealed: 1,
		batches:  [][]Element{{feedPost("1", "llm only post")}},
	}
	s, _ := newTestScraper(Options{StagnationLimit: 3})

	res, err := s.Scrape(context.Background(), page, 5)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopStagnation {
		t.Fatalf("expected stagnation, got %s", res.StopReason)
	}
	if res.Scrolls != 3 {
		t.Fatalf("expected 3 scrolls, got %d", res.Scrolls)
	}
	if len(res.Posts) != 1 {
		t.Fatalf("expected accumulated post to be returned, got %d", len(res.Posts))
	}
}

func TestScrapeStopsOnTimeoutSinceLastPost(t *testing.T) {
	page := &fakePage{
		revealed: 1,
		batches:  [][]Element{{feedPost("1", "llm first")}},
		grow: func(n int) Element {
			return feedPost(fmt.Sprintf("x%d", n), "cooking recipes")
		},
	}
	s, clock := newTestScraper(Options{ScrollPause: 2 * time.Second, Timeout: 10 * time.Second})
	start := clock.now

	res, _ := s.Scrape(context.Background(), page, 5)
	if res.StopReason != models.StopTimeout {
		t.Fatalf("expected timeout, got %s", res.StopReason)
	}
	if res.Scrolls != 5 {
		t.Fatalf("expected 5 scrolls before timeout, got %d", res.Scrolls)
	}
	if elapsed := clock.now.Sub(start); elapsed != 10*time.Second {
		t.Fatalf("expected 10s elapsed, got %v", elapsed)
	}
}

func TestScrapeStopsAtMaxScrolls(t *testing.T) {
	page := &fakePage{
		grow: func(n int) Element {
			return feedPost(fmt.Sprintf("%d", n), "llm daily")
		},
	}
	s, _ := newTestScraper(Options{MaxScrolls: 4})

	res, _ := s.Scrape(context.Background(), page, 100)
	if res.StopReason != models.StopMaxScrolls {
		t.Fatalf("expected max_scrolls, got %s", res.StopReason)
	}
	if res.Scrolls != 4 || len(res.Posts) != 4 {
		t.Fatalf("expected 4 scrolls and 4 posts, got %d and %d", res.Scrolls, len(res.Posts))
	}
}

func TestScrapeCancelledContext(t *testing.T) {
	page := &fakePage{revealed: 1, batches: [][]Element{{feedPost("1", "llm")}}}
	s, _ := newTestScraper(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Scrape(ctx, page, 1)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopCancelled || len(res.Posts) != 0 {
		t.Fatalf("expected cancelled with no posts, got %s/%d", res.StopReason, len(res.Posts))
	}
}

func TestScrapeSkipsBrokenNodes(t *testing.T) {
	broken := &fakeElement{findErr: errors.New("detached node")}
	page := &fakePage{
		revealed: 1,
		batches:  [][]Element{{broken, feedPost("2", "rag is here")}},
	}
	s, _ := newTestScraper(Options{})

	res, err := s.Scrape(context.Background(), page, 1)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(res.Posts) != 1 || *res.Posts[0].ID != "2" {
		t.Fatalf("expected the healthy post, got %+v", res.Posts)
	}
}

func TestScrapePageErrorReturnsAccumulated(t *testing.T) {
	page := &fakePage{findErr: errors.New("target closed")}
	s, _ := newTestScraper(Options{})

	res, err := s.Scrape(context.Background(), page, 3)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopPageError {
		t.Fatalf("expected page_error, got %s", res.StopReason)
	}
}

func TestScrapeRejectsNonPositiveTarget(t *testing.T) {
	s, _ := newTestScraper(Options{})
	if _, err := s.Scrape(context.Background(), &fakePage{}, 0); err == nil {
		t.Fatal("expected error for zero target")
	}
}

func TestScrapeExtractsFields(t *testing.T) {
	node := feedPost("77", "Shipping an LLM feature")
	node.children[ReactionsSelector] = []Element{
		&fakeElement{attrs: map[string]string{"aria-label": "1,234 reactions"}},
	}
	node.children[CountsItemSelector] = []Element{
		textNode("56 comments"),
		textNode("7 reposts"),
	}
	node.children[RelativeTimeSelector] = []Element{textNode("3h •")}

	page := &fakePage{revealed: 1, batches: [][]Element{{node}}}
	s, clock := newTestScraper(Options{ScrollIntoView: true})

	res, _ := s.Scrape(context.Background(), page, 1)
	if len(res.Posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(res.Posts))
	}
	p := res.Posts[0]

	want := models.Metrics{Reactions: 1234, Comments: 56, Shares: 7}
	if p.Metrics != want {
		t.Errorf("metrics = %+v, want %+v", p.Metrics, want)
	}
	if p.URL == nil || *p.URL != "https://www.linkedin.com/feed/update/urn:li:activity:77/" {
		t.Errorf("unexpected url %v", p.URL)
	}
	if p.LinkedURL == nil || *p.LinkedURL != "https://example.com/article" {
		t.Errorf("unexpected linked url %v", p.LinkedURL)
	}
	if p.Timestamp == nil || !p.Timestamp.Equal(clock.now.Add(-3*time.Hour)) {
		t.Errorf("unexpected timestamp %v", p.Timestamp)
	}
	if len(p.MatchedTopics) != 1 || p.MatchedTopics[0] != "llm" {
		t.Errorf("unexpected topics %v", p.MatchedTopics)
	}
	if !node.scrolled {
		t.Error("expected post to be scrolled into view")
	}
}

func TestScrapeMissingMetricsDefaultToZero(t *testing.T) {
	page := &fakePage{revealed: 1, batches: [][]Element{{feedPost("", "plain llm text")}}}
	s, _ := newTestScraper(Options{})

	res, _ := s.Scrape(context.Background(), page, 1)
	p := res.Posts[0]
	if p.Metrics != (models.Metrics{}) {
		t.Errorf("expected zero metrics, got %+v", p.Metrics)
	}
	if p.URL != nil || p.Timestamp != nil {
		t.Errorf("expected absent url and timestamp, got %v %v", p.URL, p.Timestamp)
	}
}

func TestScrapeSkipsRepostOfSeenText(t *testing.T) {
	page := &fakePage{
		revealed: 1,
		batches: [][]Element{{
			feedPost("100", "LLM agents in practice"),
			feedPost("200", "llm  agents in practice"),
			feedPost("300", "RAG notes"),
		}},
	}
	s, _ := newTestScraper(Options{})

	res, err := s.Scrape(context.Background(), page, 5)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(res.Posts) != 2 {
		t.Fatalf("expected repost to be dropped, got %d posts", len(res.Posts))
	}
	if *res.Posts[0].ID != "100" || *res.Posts[1].ID != "300" {
		t.Fatalf("unexpected posts %q %q", *res.Posts[0].ID, *res.Posts[1].ID)
	}
	if res.Processed != 2 {
		t.Fatalf("expected 2 unique posts processed, got %d", res.Processed)
	}
}

// slowElement stands for a node whose reads hit the browser step timeout
type slowElement struct {
	clock *fakeClock
	delay time.Duration
	reads *int
}

func (e *slowElement) FindAll(selector string) ([]Element, error) {
	*e.reads++
	e.clock.now = e.clock.now.Add(e.delay)
	return nil, context.DeadlineExceeded
}

func (e *slowElement) Text() (string, error)                 { return "", context.DeadlineExceeded }
func (e *slowElement) Attribute(name string) (string, error) { return "", context.DeadlineExceeded }
func (e *slowElement) ScrollIntoView() error                 { return context.DeadlineExceeded }

func TestScrapeTimesOutWithinSlowBatch(t *testing.T) {
	s, clock := newTestScraper(Options{Timeout: 60 * time.Second})
	reads := 0
	var batch []Element
	for i := 0; i < 10; i++ {
		batch = append(batch, &slowElement{clock: clock, delay: 30 * time.Second, reads: &reads})
	}
	page := &fakePage{revealed: 1, batches: [][]Element{batch}}

	res, err := s.Scrape(context.Background(), page, 5)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopTimeout {
		t.Fatalf("expected timeout, got %s", res.StopReason)
	}
	if reads != 2 {
		t.Fatalf("expected the batch to be abandoned after 2 slow nodes, got %d", reads)
	}
	if res.Skipped != 2 || page.scrolls != 0 {
		t.Fatalf("expected 2 skipped and no scrolls, got %d and %d", res.Skipped, page.scrolls)
	}
}
