package browser

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/feed"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/topics"
	"github.com/linkedin-pipeline/pkg/logger"
)

func loadSnapshot(t *testing.T, batch int) *Snapshot {
	t.Helper()
	f, err := os.Open("testdata/feed.html")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	snap, err := NewSnapshot(f, batch)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func TestSnapshotRevealsInBatches(t *testing.T) {
	snap := loadSnapshot(t, 2)
	if snap.Total() != 5 {
		t.Fatalf("expected 5 posts, got %d", snap.Total())
	}

	posts, _ := snap.FindAll(feed.PostSelector)
	h1, _ := snap.Height()
	if len(posts) != 2 {
		t.Fatalf("expected first batch of 2, got %d", len(posts))
	}

	snap.ScrollToBottom()
	snap.ScrollToBottom()
	snap.ScrollToBottom()
	posts, _ = snap.FindAll(feed.PostSelector)
	h2, _ := snap.Height()
	if len(posts) != 5 {
		t.Fatalf("expected all posts revealed, got %d", len(posts))
	}
	if h2 <= h1 {
		t.Fatalf("expected height to grow, got %d then %d", h1, h2)
	}
}

func TestScrapeSnapshot(t *testing.T) {
	snap := loadSnapshot(t, 2)
	matcher := topics.NewMatcher([]string{"rag", "vector db", "agent", "llm", "fine-tuning"})
	scraper := feed.NewScraper(matcher, feed.Options{ScrollPause: 1}, logger.Nop())

	res, err := scraper.Scrape(context.Background(), snap, 10)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if res.StopReason != models.StopStagnation {
		t.Fatalf("expected stagnation once the snapshot is exhausted, got %s", res.StopReason)
	}
	if len(res.Posts) != 3 {
		t.Fatalf("expected 3 relevant unique posts, got %d", len(res.Posts))
	}

	first := res.Posts[0]
	if first.ID == nil || *first.ID != "1001" {
		t.Fatalf("unexpected id %v", first.ID)
	}
	if first.Text != "Shipping our first RAG system with a vector db." {
		t.Fatalf("unexpected text %q", first.Text)
	}
	want := models.Metrics{Reactions: 1200, Comments: 48, Shares: 12}
	if first.Metrics != want {
		t.Fatalf("metrics = %+v, want %+v", first.Metrics, want)
	}
	if first.URL == nil || *first.URL != "https://www.linkedin.com/feed/update/urn:li:activity:1001/" {
		t.Fatalf("unexpected url %v", first.URL)
	}
	if first.LinkedURL == nil || *first.LinkedURL != "https://www.linkedin.com/in/ada" {
		t.Fatalf("unexpected linked url %v", first.LinkedURL)
	}
	if first.Timestamp == nil {
		t.Fatal("expected timestamp from relative time")
	}

	second := res.Posts[1]
	if second.ID != nil {
		t.Fatalf("expected id-less post, got %v", *second.ID)
	}
	if second.Metrics.Reactions != 87 {
		t.Fatalf("expected 87 reactions, got %d", second.Metrics.Reactions)
	}

	third := res.Posts[2]
	if third.ID == nil || *third.ID != "1004" || third.Metrics.Comments != 3 {
		t.Fatalf("unexpected third post %+v", third)
	}
}

func TestChromeLoginRequiresCredentials(t *testing.T) {
	c := NewChrome(context.Background(), ChromeOptions{Headless: true}, logger.Nop())
	defer c.Close()

	err := c.Login(context.Background(), "", "secret")
	if !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestChromeStepsAreBounded(t *testing.T) {
	// a node LinkedIn removed after a scroll never becomes ready
	hang := func(ctx context.Context, actions ...chromedp.Action) error {
		<-ctx.Done()
		return ctx.Err()
	}
	c := &Chrome{
		ctx:    context.Background(),
		opts:   ChromeOptions{StepTimeout: 20 * time.Millisecond},
		log:    logger.Nop(),
		runner: hang,
	}
	el := &chromeElement{browser: c, node: &cdp.Node{NodeID: 42}}

	done := make(chan error, 1)
	go func() {
		_, err := el.Text()
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Text did not return after the step timeout")
	}

	if _, err := c.FindAll(feed.PostSelector); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected bounded FindAll, got %v", err)
	}
	if err := c.ScrollToBottom(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected bounded scroll, got %v", err)
	}
}
