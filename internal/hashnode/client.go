package hashnode

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

const defaultEndpoint = "https://gql.hashnode.com"

const publishMutation = `mutation PublishPost($input: PublishPostInput!) {
  publishPost(input: $input) {
    post {
      id
      url
      title
    }
  }
}`

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	slugStripPattern = regexp.MustCompile(`[^a-z0-9\s-]`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// BlogResult reports the outcome of a publish
type BlogResult struct {
	Status    string `json:"status"`
	URL       string `json:"url,omitempty"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Client publishes markdown articles to a HashNode publication
type Client struct {
	httpClient    *http.Client
	endpoint      string
	apiKey        string
	publicationID string
	minWords      int
	maxWords      int
	rateLimiter   *ratelimit.MultiLimiter
	now           func() time.Time
	log           *logger.Logger
}

// NewClient creates a new HashNode client
func NewClient(cfg config.HashNodeConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		endpoint:      endpoint,
		apiKey:        cfg.APIKey,
		publicationID: cfg.PublicationID,
		minWords:      cfg.MinWords,
		maxWords:      cfg.MaxWords,
		rateLimiter:   limiter,
		now:           time.Now,
		log:           log.WithComponent("hashnode"),
	}
}

// Slug builds a URL slug from title with a date suffix
func Slug(title string, date time.Time) string {
	clean := slugStripPattern.ReplaceAllString(strings.ToLower(title), "")
	slug := spacePattern.ReplaceAllString(strings.TrimSpace(clean), "-")
	return slug + "-" + date.Format("20060102")
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type publishResponse struct {
	Data struct {
		PublishPost struct {
			Post *struct {
				ID    string `json:"id"`
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"post"`
		} `json:"publishPost"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Publish validates content length and publishes the article. Failures are
// reported in the result, never returned.
func (c *Client) Publish(ctx context.Context, title, content string) *BlogResult {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return &BlogResult{Status: StatusError, Error: "title and content are required", Code: CodeMissing}
	}
	if c.apiKey == "" || c.publicationID == "" {
		return &BlogResult{Status: StatusError, Error: "hashnode api key and publication id must be configured"}
	}

	words, err := Validate(content, c.minWords, c.maxWords)
	if err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		c.log.Error().Err(err).Int("word_count", words).Msg("Content validation failed")
		return &BlogResult{Status: StatusError, Error: err.Error(), Code: verr.Code, WordCount: words}
	}

	post, err := c.publish(ctx, title, content)
	if err != nil {
		c.log.Error().Err(err).Str("title", title).Msg("Failed to publish post")
		return &BlogResult{Status: StatusError, Error: err.Error(), WordCount: words}
	}

	c.log.Info().Str("url", post.URL).Int("word_count", words).Msg("Published blog post")
	post.Status = StatusSuccess
	post.WordCount = words
	return post
}

func (c *Client) publish(ctx context.Context, title, content string) (*BlogResult, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterHashNode); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	body, err := json.Marshal(graphQLRequest{
		Query: publishMutation,
		Variables: map[string]any{
			"input": map[string]any{
				"title":           title,
				"contentMarkdown": content,
				"publicationId":   c.publicationID,
				"slug":            Slug(title, c.now()),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hashnode API returned %d: %s", resp.StatusCode, string(data))
	}

	var result publishResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", result.Errors[0].Message)
	}
	post := result.Data.PublishPost.Post
	if post == nil {
		return nil, errors.New("no post data returned")
	}

	return &BlogResult{URL: post.URL, ID: post.ID, Title: post.Title}, nil
}
