package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkedin-pipeline/internal/ai"
	"github.com/linkedin-pipeline/internal/feed"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/notify"
	"github.com/linkedin-pipeline/internal/output"
	"github.com/linkedin-pipeline/internal/research"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/topics"
	"github.com/linkedin-pipeline/pkg/logger"
)

// Run statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// topPostCount is how many of the most engaging posts feed the analysis
const topPostCount = 5

// Params tune a single run
type Params struct {
	// Topics replaces the stored topic list when set
	Topics   []string `json:"topics,omitempty"`
	MaxPosts int      `json:"max_posts,omitempty"`

	// SkipDraft stops after scraping and persisting
	SkipDraft bool `json:"skip_draft,omitempty"`
}

// RunResult is the status object every run returns
type RunResult struct {
	Status         string                   `json:"status"`
	RunID          string                   `json:"run_id"`
	PostsCollected int                      `json:"posts_collected"`
	StopReason     models.StopReason        `json:"stop_reason,omitempty"`
	OutputFile     string                   `json:"output_file,omitempty"`
	References     int                      `json:"references"`
	DraftID        uint                     `json:"draft_id,omitempty"`
	DraftTitle     string                   `json:"draft_title,omitempty"`
	Notifications  map[string]notify.Result `json:"notifications,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Duration       time.Duration            `json:"duration"`
}

// PageOpener starts a feed page session; the returned func releases it
type PageOpener interface {
	Open(ctx context.Context) (feed.Page, func(), error)
}

// TopicSource provides the current topic list
type TopicSource interface {
	Current(ctx context.Context) ([]string, error)
}

// ContentWriter analyzes scraped posts and writes new ones
type ContentWriter interface {
	AnalyzeEngagement(ctx context.Context, posts []models.Post) (*ai.EngagementInsights, error)
	GeneratePost(ctx context.Context, req ai.PostRequest) (*ai.GeneratedPost, error)
}

// ReferenceCollector gathers related articles
type ReferenceCollector interface {
	Collect(ctx context.Context, relevance research.Relevance) []models.Reference
}

// DraftTracker records new drafts outside the database
type DraftTracker interface {
	TrackDraft(ctx context.Context, draft *models.Draft, topics []string) error
}

// Pipeline scrapes the feed and turns what it finds into a draft post
type Pipeline struct {
	opener     PageOpener
	topics     TopicSource
	keywords   []string
	scrapeOpts feed.Options
	maxPosts   int
	output     *output.Writer
	repository storage.Repository
	writer     ContentWriter
	persona    string
	log        *logger.Logger

	research  ReferenceCollector         // optional
	notifiers map[string]notify.Notifier // optional
	tracker   DraftTracker               // optional
}

// PipelineConfig holds the required collaborators of a pipeline
type PipelineConfig struct {
	Opener     PageOpener
	Topics     TopicSource
	Keywords   []string // always matched in addition to the topic list
	ScrapeOpts feed.Options
	MaxPosts   int
	Output     *output.Writer
	Repository storage.Repository
	Writer     ContentWriter
	Persona    string
}

// NewPipeline creates a pipeline
func NewPipeline(cfg PipelineConfig, log *logger.Logger) *Pipeline {
	maxPosts := cfg.MaxPosts
	if maxPosts <= 0 {
		maxPosts = 10
	}
	return &Pipeline{
		opener:     cfg.Opener,
		topics:     cfg.Topics,
		keywords:   cfg.Keywords,
		scrapeOpts: cfg.ScrapeOpts,
		maxPosts:   maxPosts,
		output:     cfg.Output,
		repository: cfg.Repository,
		writer:     cfg.Writer,
		persona:    cfg.Persona,
		log:        log.WithComponent("pipeline"),
		notifiers:  make(map[string]notify.Notifier),
	}
}

// WithResearch enables reference gathering
func (p *Pipeline) WithResearch(c ReferenceCollector) *Pipeline {
	p.research = c
	return p
}

// WithNotifier adds a named notification channel
func (p *Pipeline) WithNotifier(name string, n notify.Notifier) *Pipeline {
	p.notifiers[name] = n
	return p
}

// WithTracker enables draft export
func (p *Pipeline) WithTracker(t DraftTracker) *Pipeline {
	p.tracker = t
	return p
}

// Run executes one pipeline run. The result is never nil; on failure its
// status is error and the error is also returned.
func (p *Pipeline) Run(ctx context.Context, params Params) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	log := p.log.WithRunID(result.RunID)

	err := p.run(ctx, params, result, log)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		log.Error().Err(err).Dur("duration", result.Duration).Msg("Pipeline run failed")
		return result, err
	}

	result.Status = StatusSuccess
	log.Info().
		Int("posts", result.PostsCollected).
		Uint("draft_id", result.DraftID).
		Dur("duration", result.Duration).
		Msg("Pipeline run completed")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, params Params, result *RunResult, log *logger.Logger) error {
	target := params.MaxPosts
	if target <= 0 {
		target = p.maxPosts
	}

	topicList, err := p.topicList(ctx, params.Topics)
	if err != nil {
		return err
	}
	matcher := topics.NewMatcher(topicList)

	run := &models.ScrapeRun{ID: result.RunID, Target: target, StartedAt: time.Now()}
	if err := p.repository.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	posts, err := p.scrape(ctx, matcher, target, run, log)
	p.finishRun(ctx, run, err, log)
	if err != nil {
		return err
	}
	result.PostsCollected = len(posts)
	result.StopReason = run.StopReason
	result.OutputFile = run.OutputFile

	if len(posts) == 0 {
		log.Warn().Msg("No relevant posts found, skipping generation")
		return nil
	}
	if params.SkipDraft {
		return nil
	}

	insights, err := p.writer.AnalyzeEngagement(ctx, ai.TopPosts(posts, topPostCount))
	if err != nil {
		return fmt.Errorf("failed to analyze engagement: %w", err)
	}

	var refs []models.Reference
	if p.research != nil {
		refs = p.research.Collect(ctx, matcher)
	}
	result.References = len(refs)

	postTopics := rankTopics(posts)
	generated, err := p.writer.GeneratePost(ctx, ai.PostRequest{
		Insights:   insights,
		References: refs,
		Topics:     postTopics,
		Persona:    p.persona,
	})
	if err != nil {
		return fmt.Errorf("failed to generate post: %w", err)
	}

	draft := &models.Draft{
		RunID:    result.RunID,
		Title:    generated.Title,
		Content:  generated.Content,
		Hashtags: models.StringSlice(generated.Hashtags),
		Insights: insights.AsMap(),
		Status:   models.DraftStatusPending,
	}
	if err := p.repository.CreateDraft(ctx, draft); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	result.DraftID = draft.ID
	result.DraftTitle = draft.Title

	result.Notifications = p.notify(ctx, draft, log)

	if p.tracker != nil {
		if err := p.tracker.TrackDraft(ctx, draft, postTopics); err != nil {
			log.Warn().Err(err).Msg("Failed to export draft to tracker")
		}
	}
	return nil
}

// topicList returns the requested topics, or the stored list, merged with
// the always-on keywords
func (p *Pipeline) topicList(ctx context.Context, requested []string) ([]string, error) {
	list := requested
	if len(list) == 0 && p.topics != nil {
		current, err := p.topics.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load topics: %w", err)
		}
		list = current
	}

	seen := make(map[string]struct{})
	var merged []string
	for _, t := range append(append([]string{}, list...), p.keywords...) {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, strings.TrimSpace(t))
	}
	if len(merged) == 0 {
		return nil, errors.New("no topics configured")
	}
	return merged, nil
}

func (p *Pipeline) scrape(ctx context.Context, matcher *topics.Matcher, target int, run *models.ScrapeRun, log *logger.Logger) ([]models.Post, error) {
	page, release, err := p.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer release()

	scrapeResult, err := feed.NewScraper(matcher, p.scrapeOpts, log).Scrape(ctx, page, target)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape feed: %w", err)
	}
	run.Scrolls = scrapeResult.Scrolls
	run.StopReason = scrapeResult.StopReason

	path, file, err := p.output.Write(run.ID, scrapeResult.Posts, scrapeResult.StopReason)
	if err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	run.OutputFile = path
	posts := file.Posts
	run.Collected = len(posts)

	rows := make([]models.ScrapedPost, 0, len(posts))
	for _, post := range posts {
		rows = append(rows, models.NewScrapedPost(run.ID, post))
	}
	if _, err := p.repository.SavePosts(ctx, rows); err != nil {
		log.Warn().Err(err).Msg("Failed to persist scraped posts")
	}

	return posts, nil
}

func (p *Pipeline) finishRun(ctx context.Context, run *models.ScrapeRun, runErr error, log *logger.Logger) {
	now := time.Now()
	run.FinishedAt = &now
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := p.repository.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to update run")
	}
}

func (p *Pipeline) notify(ctx context.Context, draft *models.Draft, log *logger.Logger) map[string]notify.Result {
	if len(p.notifiers) == 0 {
		return nil
	}
	msg := notify.Message{DraftID: draft.ID, Title: draft.Title, Content: draft.Content}
	results := make(map[string]notify.Result, len(p.notifiers))
	for name, n := range p.notifiers {
		res := n.Notify(ctx, msg)
		results[name] = res
		if !res.Sent {
			log.Warn().Str("channel", name).Str("error", res.Error).Msg("Notification not sent")
		}
	}
	return results
}

// rankTopics orders matched topics by how many posts mention them
func rankTopics(posts []models.Post) []string {
	counts := make(map[string]int)
	for _, post := range posts {
		for _, t := range post.MatchedTopics {
			counts[t]++
		}
	}
	ranked := make([]string, 0, len(counts))
	for t := range counts {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}
