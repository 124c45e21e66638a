package browser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/linkedin-pipeline/internal/feed"
)

// Snapshot replays a saved feed page. Posts are revealed batchSize at a
// time, each ScrollToBottom exposing the next batch.
type Snapshot struct {
	doc       *goquery.Document
	posts     []*goquery.Selection
	revealed  int
	batchSize int
}

// NewSnapshot parses saved feed HTML
func NewSnapshot(r io.Reader, batchSize int) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	s := &Snapshot{doc: doc, batchSize: batchSize}
	doc.Find(feed.PostSelector).Each(func(_ int, sel *goquery.Selection) {
		s.posts = append(s.posts, sel)
	})
	s.revealed = min(batchSize, len(s.posts))
	return s, nil
}

// NewSnapshotFromString parses saved feed HTML from a string
func NewSnapshotFromString(html string, batchSize int) (*Snapshot, error) {
	return NewSnapshot(strings.NewReader(html), batchSize)
}

// Total returns the number of posts in the snapshot
func (s *Snapshot) Total() int {
	return len(s.posts)
}

// FindAll implements feed.Page
func (s *Snapshot) FindAll(selector string) ([]feed.Element, error) {
	if selector == feed.PostSelector {
		out := make([]feed.Element, s.revealed)
		for i := 0; i < s.revealed; i++ {
			out[i] = &snapshotElement{sel: s.posts[i]}
		}
		return out, nil
	}
	return wrap(s.doc.Find(selector)), nil
}

// ScrollToBottom implements feed.Page
func (s *Snapshot) ScrollToBottom() error {
	s.revealed = min(s.revealed+s.batchSize, len(s.posts))
	return nil
}

// Height implements feed.Page
func (s *Snapshot) Height() (int64, error) {
	return int64(s.revealed) * 800, nil
}

type snapshotElement struct {
	sel *goquery.Selection
}

func wrap(sel *goquery.Selection) []feed.Element {
	out := make([]feed.Element, 0, sel.Length())
	sel.Each(func(_ int, child *goquery.Selection) {
		out = append(out, &snapshotElement{sel: child})
	})
	return out
}

func (e *snapshotElement) FindAll(selector string) ([]feed.Element, error) {
	return wrap(e.sel.Find(selector)), nil
}

func (e *snapshotElement) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *snapshotElement) Attribute(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *snapshotElement) ScrollIntoView() error {
	return nil
}
