package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

// EngagementInsights is the model's reading of what made posts perform
type EngagementInsights struct {
	Summary          string   `json:"summary"`
	Themes           []string `json:"themes"`
	Hooks            []string `json:"hooks"`
	Formats          []string `json:"formats"`
	RecommendedAngle string   `json:"recommended_angle"`
}

// AsMap converts insights for storage on a draft
func (i *EngagementInsights) AsMap() models.JSON {
	return models.JSON{
		"summary":           i.Summary,
		"themes":            i.Themes,
		"hooks":             i.Hooks,
		"formats":           i.Formats,
		"recommended_angle": i.RecommendedAngle,
	}
}

// GeneratedPost is a LinkedIn post written by the model
type GeneratedPost struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

// Writer turns scraped posts into insights and new content
type Writer struct {
	llm Completer
	log *logger.Logger
}

// NewWriter creates a content writer on top of a completer
func NewWriter(llm Completer, log *logger.Logger) *Writer {
	return &Writer{
		llm: llm,
		log: log.WithComponent("writer"),
	}
}

// TopPosts returns up to n posts ordered by total engagement
func TopPosts(posts []models.Post, n int) []models.Post {
	sorted := append([]models.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metrics.Total() > sorted[j].Metrics.Total()
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// AnalyzeEngagement asks the model what drives engagement across posts
func (w *Writer) AnalyzeEngagement(ctx context.Context, posts []models.Post) (*EngagementInsights, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("no posts to analyze")
	}

	var b strings.Builder
	for i, p := range TopPosts(posts, 10) {
		fmt.Fprintf(&b, "%d. [%d reactions, %d comments, %d reposts] topics: %s\n%s\n\n",
			i+1,
			p.Metrics.Reactions, p.Metrics.Comments, p.Metrics.Shares,
			strings.Join(p.MatchedTopics, ", "),
			truncate(p.Text, 800),
		)
	}

	resp, err := w.llm.Complete(ctx, EngagementSystemPrompt+jsonOnly, fmt.Sprintf(EngagementUserPrompt, b.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze engagement: %w", err)
	}

	var insights EngagementInsights
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(resp)), &insights); err != nil {
		w.log.Error().Err(err).Str("response", truncate(resp, 300)).Msg("Failed to parse insights")
		return nil, fmt.Errorf("failed to parse insights: %w", err)
	}

	w.log.Info().Strs("themes", insights.Themes).Msg("Engagement analyzed")
	return &insights, nil
}

// PostRequest carries the inputs for writing a LinkedIn post
type PostRequest struct {
	Insights   *EngagementInsights
	References []models.Reference
	Topics     []string
	Persona    string
}

// GeneratePost writes a new LinkedIn post from insights and references
func (w *Writer) GeneratePost(ctx context.Context, req PostRequest) (*GeneratedPost, error) {
	if req.Insights == nil {
		return nil, fmt.Errorf("insights are required")
	}

	insightsText := fmt.Sprintf("%s\nThemes: %s\nHooks: %s\nFormats: %s\nAngle: %s",
		req.Insights.Summary,
		strings.Join(req.Insights.Themes, ", "),
		strings.Join(req.Insights.Hooks, "; "),
		strings.Join(req.Insights.Formats, ", "),
		req.Insights.RecommendedAngle,
	)

	refs := "None"
	if len(req.References) > 0 {
		var b strings.Builder
		for _, r := range req.References {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.Link, truncate(r.Summary, 300))
		}
		refs = b.String()
	}

	persona := req.Persona
	if persona == "" {
		persona = "Write as a practitioner sharing hands-on experience with AI systems."
	}

	resp, err := w.llm.Complete(ctx,
		fmt.Sprintf(PostSystemPrompt, persona)+jsonOnly,
		fmt.Sprintf(PostUserPrompt, insightsText, refs, strings.Join(req.Topics, ", ")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate post: %w", err)
	}

	var post GeneratedPost
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(resp)), &post); err != nil {
		w.log.Error().Err(err).Str("response", truncate(resp, 300)).Msg("Failed to parse generated post")
		return nil, fmt.Errorf("failed to parse generated post: %w", err)
	}
	post.Title = strings.TrimSpace(post.Title)
	post.Content = strings.TrimSpace(post.Content)
	if post.Content == "" {
		return nil, fmt.Errorf("model returned an empty post")
	}
	if post.Title == "" {
		post.Title = firstLine(post.Content, 100)
	}

	w.log.Info().Str("title", post.Title).Int("length", len(post.Content)).Msg("Post generated")
	return &post, nil
}

// GenerateBlogArticle expands a post into a markdown article
func (w *Writer) GenerateBlogArticle(ctx context.Context, title, content string, minWords, maxWords int) (string, error) {
	resp, err := w.llm.Complete(ctx, BlogSystemPrompt, fmt.Sprintf(BlogUserPrompt, minWords, maxWords, title, content))
	if err != nil {
		return "", fmt.Errorf("failed to generate article: %w", err)
	}
	article := strings.TrimSpace(resp)
	if article == "" {
		return "", fmt.Errorf("model returned an empty article")
	}
	return article, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstLine(s string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return truncate(strings.TrimSpace(line), n)
}
