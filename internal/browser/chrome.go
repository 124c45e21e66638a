package browser

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/feed"
	"github.com/linkedin-pipeline/pkg/logger"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ChromeOptions configures the browser session
type ChromeOptions struct {
	LoginURL     string
	FeedURL      string
	Headless     bool
	ExecPath     string
	MaxRetries   int
	StepTimeout  time.Duration
	RetryBackoff time.Duration // base; doubled on every attempt
}

// Chrome is a headless browser session on the LinkedIn feed
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        ChromeOptions
	log         *logger.Logger

	// runner executes actions; chromedp.Run outside tests
	runner func(ctx context.Context, actions ...chromedp.Action) error
}

// NewChrome starts a browser. Close must be called to release it.
func NewChrome(parent context.Context, opts ChromeOptions, log *logger.Logger) *Chrome {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "https://www.linkedin.com/login"
	}
	if opts.FeedURL == "" {
		opts.FeedURL = "https://www.linkedin.com/feed/"
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return &Chrome{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		opts:        opts,
		log:         log.WithComponent("browser"),
		runner:      chromedp.Run,
	}
}

// run executes actions bounded by the step timeout. Node lookups on
// elements LinkedIn has since re-rendered otherwise wait forever.
func (c *Chrome) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.StepTimeout)
	defer cancel()
	return c.runner(ctx, actions...)
}

// Close shuts the browser down
func (c *Chrome) Close() {
	c.cancel()
	c.allocCancel()
}

// Login signs in and waits for the feed to render. Failed attempts are
// retried with exponential backoff; missing credentials fail immediately.
func (c *Chrome) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("linkedin login: %w", config.ErrMissingCredentials)
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if err := c.login(email, password); err != nil {
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Login attempt failed")

			if attempt == c.opts.MaxRetries-1 {
				break
			}
			wait := time.Duration(math.Pow(2, float64(attempt))) * c.opts.RetryBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		c.log.Info().Int("attempt", attempt+1).Msg("Logged in to LinkedIn")
		return nil
	}
	return fmt.Errorf("failed to login after %d attempts: %w", c.opts.MaxRetries, lastErr)
}

func (c *Chrome) login(email, password string) error {
	return c.run(
		chromedp.Navigate(c.opts.LoginURL),
		chromedp.WaitVisible("#username", chromedp.ByID),
		chromedp.SendKeys("#username", email, chromedp.ByID),
		chromedp.SendKeys("#password", password, chromedp.ByID),
		chromedp.Click("button[type='submit']", chromedp.ByQuery),
		chromedp.WaitVisible(feed.PostSelector, chromedp.ByQuery),
	)
}

// OpenFeed navigates to the feed and waits for the first posts
func (c *Chrome) OpenFeed() error {
	if err := c.run(
		chromedp.Navigate(c.opts.FeedURL),
		chromedp.WaitVisible(feed.PostSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}
	return nil
}

// HTML returns the current document markup, for saving snapshots
func (c *Chrome) HTML() (string, error) {
	var html string
	if err := c.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// FindAll implements feed.Page
func (c *Chrome) FindAll(selector string) ([]feed.Element, error) {
	return c.query(selector)
}

// ScrollToBottom implements feed.Page
func (c *Chrome) ScrollToBottom() error {
	return c.run(chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

// Height implements feed.Page
func (c *Chrome) Height() (int64, error) {
	var h int64
	if err := c.run(chromedp.Evaluate(`document.body.scrollHeight`, &h)); err != nil {
		return 0, err
	}
	return h, nil
}

func (c *Chrome) query(selector string, opts ...chromedp.QueryOption) ([]feed.Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := c.run(chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, err
	}
	out := make([]feed.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &chromeElement{browser: c, node: n}
	}
	return out, nil
}

type chromeElement struct {
	browser *Chrome
	node    *cdp.Node
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) FindAll(selector string) ([]feed.Element, error) {
	return e.browser.query(selector, chromedp.FromNode(e.node))
}

func (e *chromeElement) Text() (string, error) {
	var text string
	if err := e.browser.run(chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (e *chromeElement) Attribute(name string) (string, error) {
	var value string
	var ok bool
	if err := e.browser.run(chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return value, nil
}

func (e *chromeElement) ScrollIntoView() error {
	return e.browser.run(chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID))
}
