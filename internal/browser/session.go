package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/linkedin-pipeline/internal/feed"
	"github.com/linkedin-pipeline/pkg/logger"
)

// ChromeOpener starts a logged-in Chrome session on the feed
type ChromeOpener struct {
	Options  ChromeOptions
	Email    string
	Password string
	Log      *logger.Logger
}

// Open logs in and opens the feed. The returned func closes the browser.
func (o *ChromeOpener) Open(ctx context.Context) (feed.Page, func(), error) {
	chrome := NewChrome(ctx, o.Options, o.Log)
	if err := chrome.Login(ctx, o.Email, o.Password); err != nil {
		chrome.Close()
		return nil, nil, err
	}
	if err := chrome.OpenFeed(); err != nil {
		chrome.Close()
		return nil, nil, fmt.Errorf("failed to open feed: %w", err)
	}
	return chrome, chrome.Close, nil
}

// SnapshotOpener serves a saved feed HTML file instead of a live browser
type SnapshotOpener struct {
	Path      string
	BatchSize int
}

// Open parses the snapshot file
func (o *SnapshotOpener) Open(ctx context.Context) (feed.Page, func(), error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := NewSnapshot(f, o.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	return snap, func() {}, nil
}
