// Package app wires the pipeline components from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/linkedin-pipeline/internal/agent/publisher"
	"github.com/linkedin-pipeline/internal/ai"
	"github.com/linkedin-pipeline/internal/api"
	"github.com/linkedin-pipeline/internal/browser"
	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/feed"
	"github.com/linkedin-pipeline/internal/hashnode"
	"github.com/linkedin-pipeline/internal/linkedin"
	"github.com/linkedin-pipeline/internal/notify"
	"github.com/linkedin-pipeline/internal/output"
	"github.com/linkedin-pipeline/internal/profile"
	"github.com/linkedin-pipeline/internal/research"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/storage/sqlite"
	"github.com/linkedin-pipeline/internal/topics"
	"github.com/linkedin-pipeline/internal/tracker"
	"github.com/linkedin-pipeline/internal/workflow"
	"github.com/linkedin-pipeline/pkg/logger"
	"github.com/linkedin-pipeline/pkg/ratelimit"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Repository storage.Repository
	Limiter    *ratelimit.MultiLimiter

	Topics    *topics.Manager
	OAuth     *linkedin.OAuthManager
	LinkedIn  *linkedin.Client
	Slack     *notify.Slack
	Tracker   *tracker.SheetsTracker // nil when disabled
	Publisher *publisher.Agent
	Pipeline  *workflow.Pipeline
	Scheduler *workflow.Scheduler
}

// Options select how the feed is read
type Options struct {
	// SnapshotPath reads a saved feed page instead of logging in with Chrome
	SnapshotPath string
}

// New opens the database and builds every component
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		Repository: repo,
		Limiter: ratelimit.New(ratelimit.Limits{
			LinkedInPerDay:     cfg.RateLimit.LinkedInRequestsPerDay,
			AnthropicPerMinute: cfg.RateLimit.AnthropicRequestsPerMinute,
			HashNodePerHour:    cfg.RateLimit.HashNodeRequestsPerHour,
			SlackPerMinute:     cfg.RateLimit.SlackRequestsPerMinute,
		}),
	}

	var defaults []string
	var persona string
	if agent := loadProfile(cfg.Profile, log); agent != nil {
		defaults = agent.AITopics
		persona = agent.SystemPrompt()
	}
	a.Topics = topics.NewManager(repo, defaults, log)
	a.OAuth = linkedin.NewOAuthManager(cfg.LinkedIn, repo, log)
	a.LinkedIn = linkedin.NewClient(cfg.LinkedIn, a.OAuth, a.Limiter, log)
	a.Slack = notify.NewSlack(cfg.Slack, a.Limiter, log)

	a.Tracker, err = tracker.NewSheetsTracker(ctx, cfg.Tracker, log)
	if err != nil {
		log.Warn().Err(err).Msg("Draft tracker disabled")
		a.Tracker = nil
	} else if a.Tracker != nil {
		if err := a.Tracker.InitializeSheet(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracker sheet")
		}
	}

	writer := ai.NewWriter(ai.NewClient(cfg.Anthropic, a.Limiter, log), log)

	a.Publisher = publisher.NewAgent(a.LinkedIn, repo, publisher.Options{
		Visibility: cfg.LinkedIn.Visibility,
		MinWords:   cfg.HashNode.MinWords,
		MaxWords:   cfg.HashNode.MaxWords,
	}, log)
	if cfg.HashNode.Enabled {
		a.Publisher.WithBlog(writer, hashnode.NewClient(cfg.HashNode, a.Limiter, log))
	}
	if a.Tracker != nil {
		a.Publisher.WithTracker(a.Tracker)
	}

	a.Pipeline = workflow.NewPipeline(workflow.PipelineConfig{
		Opener:     a.opener(opts),
		Topics:     a.Topics,
		Keywords:   cfg.Topics.Defaults,
		ScrapeOpts: scrapeOptions(cfg.Scraper),
		MaxPosts:   cfg.Scraper.MaxPosts,
		Output:     output.NewWriter(cfg.Output.Dir, log),
		Repository: repo,
		Writer:     writer,
		Persona:    persona,
	}, log)

	if cfg.Research.Enabled {
		collector := research.NewCollector(cfg.Research.MaxReferences, log,
			research.NewRSSSources(cfg.Research, a.Limiter, log)...)
		a.Pipeline.WithResearch(collector)
	}
	if cfg.Slack.WebhookURL != "" {
		a.Pipeline.WithNotifier("slack", a.Slack)
	}
	if cfg.Email.Enabled {
		a.Pipeline.WithNotifier("email", notify.NewEmail(cfg.Email, log))
	}
	if a.Tracker != nil {
		a.Pipeline.WithTracker(a.Tracker)
	}

	a.Scheduler = workflow.NewScheduler(a.Pipeline, config.Duration(cfg.Scheduler.Cooldown, 0), log)
	return a, nil
}

// Server builds the HTTP surface. Runs it starts use ctx.
func (a *App) Server(ctx context.Context) *api.Server {
	return api.NewServer(ctx, api.Deps{
		Scheduler:  a.Scheduler,
		Publisher:  a.Publisher,
		Notifier:   a.Slack,
		Replier:    a.Slack,
		Topics:     a.Topics,
		Repository: a.Repository,
		Verifier:   api.NewVerifier(a.Config.Slack.SigningSecret, config.Duration(a.Config.Slack.ReplayWindow, 300*time.Second)),
		APIKey:     a.Config.Server.APIKey,
	}, a.Log)
}

// Close releases the database
func (a *App) Close() error {
	return a.Repository.Close()
}

func (a *App) opener(opts Options) workflow.PageOpener {
	if opts.SnapshotPath != "" {
		return &browser.SnapshotOpener{Path: opts.SnapshotPath, BatchSize: 10}
	}
	sc := a.Config.Scraper
	return &browser.ChromeOpener{
		Options: browser.ChromeOptions{
			LoginURL:     sc.LoginURL,
			FeedURL:      sc.FeedURL,
			Headless:     sc.Headless,
			ExecPath:     sc.ChromePath,
			MaxRetries:   sc.MaxRetries,
			StepTimeout:  30 * time.Second,
			RetryBackoff: 2 * time.Second,
		},
		Email:    a.Config.LinkedIn.Email,
		Password: a.Config.LinkedIn.Password,
		Log:      a.Log,
	}
}

func scrapeOptions(sc config.ScraperConfig) feed.Options {
	def := feed.DefaultOptions()
	return feed.Options{
		ScrollPause:     config.Duration(sc.ScrollPause, def.ScrollPause),
		Timeout:         config.Duration(sc.Timeout, def.Timeout),
		MaxScrolls:      sc.MaxScrolls,
		StagnationLimit: sc.StagnationLimit,
		ScrollIntoView:  sc.ScrollIntoView,
	}
}

// loadProfile reads the agent profile that supplies the writer persona and
// the default topic list. A missing profile is not fatal.
func loadProfile(cfg config.ProfileConfig, log *logger.Logger) *profile.Agent {
	if cfg.Path == "" {
		return nil
	}
	agent, err := profile.Load(cfg.Path, profile.DefaultAgent)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Path).Msg("Agent profile not loaded")
		return nil
	}
	return agent
}
