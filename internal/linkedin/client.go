package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/pkg/logger"
	"github.com/linkedin-pipeline/pkg/ratelimit"
)

const (
	defaultBaseURL = "https://api.linkedin.com"
	restliVersion  = "2.0.0"
)

// Visibility values accepted by Share
const (
	VisibilityConnections = "connections"
	VisibilityPublic      = "public"
)

var shortcodePattern = regexp.MustCompile(`:[a-zA-Z_]+:`)

// ShareRequest is a post to publish on the member's feed
type ShareRequest struct {
	Title      string
	Content    string
	Visibility string // connections (default) or public
}

// ShareResult reports the outcome of a share; failures are described in
// Error rather than returned
type ShareResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	PostURN  string         `json:"post_urn,omitempty"`
	PostData map[string]any `json:"post_data,omitempty"`
}

// Client handles LinkedIn API requests
type Client struct {
	httpClient  *http.Client
	oauth       *OAuthManager
	rateLimiter *ratelimit.MultiLimiter
	baseURL     string
	personID    string
	maxRetries  int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         *logger.Logger
}

// NewClient creates a new LinkedIn API client
func NewClient(cfg config.LinkedInConfig, oauth *OAuthManager, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		oauth:       oauth,
		rateLimiter: limiter,
		baseURL:     strings.TrimRight(baseURL, "/"),
		personID:    cfg.PersonID,
		maxRetries:  maxRetries,
		baseDelay:   config.Duration(cfg.RetryBaseDelay, time.Second),
		sleep:       sleepContext,
		log:         log.WithComponent("linkedin"),
	}
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

// statusError is a non-2xx API response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("linkedin API returned %d: %s", e.code, e.body)
}

// retryable reports whether a failed request is worth repeating
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// do performs an authenticated request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterLinkedIn); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	token, err := c.oauth.GetValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication error: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("method", method).Str("path", path).Msg("Making LinkedIn API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// Profile represents the authenticated member
type Profile struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetProfile retrieves the authenticated member's profile
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if _, err := c.do(ctx, http.MethodGet, "/v2/userinfo", nil, &profile); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// ugcPost is the body of POST /v2/ugcPosts
type ugcPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type shareContent struct {
	ShareCommentary    commentary `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
}

type commentary struct {
	Text string `json:"text"`
}

// Share publishes a text post. It never returns an error: validation,
// authentication and API failures are reported in the result.
func (c *Client) Share(ctx context.Context, req ShareRequest) *ShareResult {
	text := FormatShare(req.Title, req.Content)
	if strings.TrimSpace(text) == "" {
		return &ShareResult{Error: "empty content provided"}
	}

	if _, err := c.oauth.GetValidToken(ctx); err != nil {
		return &ShareResult{Error: fmt.Sprintf("linkedin credentials not configured: %v", err)}
	}

	personID := c.personID
	if personID == "" {
		profile, err := c.GetProfile(ctx)
		if err != nil {
			return &ShareResult{Error: err.Error()}
		}
		personID = profile.Sub
	}

	visibility := "CONNECTIONS"
	if strings.EqualFold(req.Visibility, VisibilityPublic) {
		visibility = "PUBLIC"
	}

	body := ugcPost{
		Author:         "urn:li:person:" + personID,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]shareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    commentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility,
		},
	}

	c.log.Info().Str("visibility", visibility).Int("length", len(text)).Msg("Sharing post on LinkedIn")

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var data map[string]any
		header, err := c.do(ctx, http.MethodPost, "/v2/ugcPosts", body, &data)
		if err == nil {
			urn := header.Get("X-RestLi-Id")
			if id, ok := data["id"].(string); ok && urn == "" {
				urn = id
			}
			c.log.Info().Str("post_urn", urn).Int("attempt", attempt+1).Msg("Post shared")
			return &ShareResult{Success: true, Message: "Post shared successfully", PostURN: urn, PostData: data}
		}

		lastErr = err
		if attempt == c.maxRetries || !retryable(err) {
			break
		}

		delay := c.baseDelay * time.Duration(1<<attempt)
		c.log.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt+1).Msg("Share failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	c.log.Error().Err(lastErr).Msg("Failed to share post")
	return &ShareResult{Error: lastErr.Error()}
}

// FormatShare renders the title in unicode bold above the content, drops
// :emoji: shortcodes and separates paragraphs with a blank line
func FormatShare(title, content string) string {
	title = shortcodePattern.ReplaceAllString(strings.TrimSpace(title), "")
	content = shortcodePattern.ReplaceAllString(strings.TrimSpace(content), "")

	formatted := content
	if strings.TrimSpace(title) != "" {
		formatted = ToBold(title) + "\n\n" + content
	}

	var paragraphs []string
	for _, line := range strings.Split(sanitize(formatted), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// ToBold maps ASCII letters and digits to Mathematical Sans-Serif Bold
func ToBold(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 4)
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(0x1D5D4 + (r - 'A'))
		case r >= 'a' && r <= 'z':
			b.WriteRune(0x1D5EE + (r - 'a'))
		case r >= '0' && r <= '9':
			b.WriteRune(0x1D7EC + (r - '0'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitize removes invisible characters LinkedIn renders badly and
// normalizes line endings
func sanitize(s string) string {
	return strings.NewReplacer(
		"\r\n", "\n",
		"\r", "\n",
		"\u00a0", " ",
		"\u200b", "",
		"\ufeff", "",
	).Replace(s)
}
