package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkedin-pipeline/internal/app"
	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/internal/workflow"
	"github.com/linkedin-pipeline/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "LinkedIn feed scraping and content pipeline",
		Long: `Scrapes AI-related posts from the LinkedIn feed, drafts a new post
with Claude and publishes approved drafts to LinkedIn and HashNode.`,
		PersistentPreRunE: initializeApp,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(draftsCmd())
	rootCmd.AddCommand(blogCmd())
	rootCmd.AddCommand(oauthCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return nil
}

func build(ctx context.Context, snapshot string) (*app.App, error) {
	return app.New(ctx, cfg, log, app.Options{SnapshotPath: snapshot})
}

// ============ RUN COMMANDS ============

func scrapeCmd() *cobra.Command {
	var fromHTML string
	var maxPosts int
	var topicsCSV string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape relevant feed posts to a JSON file without drafting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromHTML == "" {
				if err := cfg.ValidateScraper(); err != nil {
					return err
				}
			}
			return execute(cmd.Context(), fromHTML, workflow.Params{
				Topics:    splitTopics(topicsCSV),
				MaxPosts:  maxPosts,
				SkipDraft: true,
			})
		},
	}

	cmd.Flags().StringVar(&fromHTML, "from-html", "", "Read a saved feed page instead of logging in")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "Number of relevant posts to collect (default from config)")
	cmd.Flags().StringVar(&topicsCSV, "topics", "", "Comma separated topics replacing the stored list")
	return cmd
}

func runCmd() *cobra.Command {
	var fromHTML string
	var maxPosts int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: scrape, analyze, draft and notify",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromHTML == "" {
				if err := cfg.ValidateScraper(); err != nil {
					return err
				}
			}
			if err := cfg.ValidateGeneration(); err != nil {
				return err
			}
			return execute(cmd.Context(), fromHTML, workflow.Params{MaxPosts: maxPosts})
		},
	}

	cmd.Flags().StringVar(&fromHTML, "from-html", "", "Read a saved feed page instead of logging in")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "Number of relevant posts to collect (default from config)")
	return cmd
}

func execute(ctx context.Context, snapshot string, params workflow.Params) error {
	a, err := build(ctx, snapshot)
	if err != nil {
		return err
	}
	defer a.Close()

	exec, err := a.Scheduler.Execute(ctx, workflow.TriggerCLI, params)
	if exec == nil || exec.Result == nil {
		return err
	}
	res := exec.Result

	fmt.Printf("\n=== Pipeline Run %s ===\n", res.RunID)
	fmt.Printf("Status:      %s\n", res.Status)
	fmt.Printf("Posts:       %d\n", res.PostsCollected)
	if res.StopReason != "" {
		fmt.Printf("Stopped:     %s\n", res.StopReason)
	}
	if res.OutputFile != "" {
		fmt.Printf("Output:      %s\n", res.OutputFile)
	}
	if res.DraftID != 0 {
		fmt.Printf("Draft:       [%d] %s\n", res.DraftID, res.DraftTitle)
		fmt.Printf("References:  %d\n", res.References)
		for name, n := range res.Notifications {
			state := "sent"
			if !n.Sent {
				state = "failed: " + n.Error
			}
			fmt.Printf("Notified:    %s (%s)\n", name, state)
		}
	}
	fmt.Printf("Duration:    %s\n", res.Duration.Round(time.Millisecond))
	if res.Error != "" {
		fmt.Printf("Error:       %s\n", res.Error)
	}
	return err
}

func splitTopics(csv string) []string {
	var out []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ============ TOPICS COMMANDS ============

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show and manage the topic list",
	}

	cmd.AddCommand(topicsListCmd())
	cmd.AddCommand(topicsAddCmd())
	cmd.AddCommand(topicsResetCmd())
	return cmd
}

func topicsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.Topics.Current(ctx)
			if err != nil {
				return err
			}
			history, err := a.Topics.History(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Topics (%d) ===\n\n", history.TotalTopics)
			for _, t := range current {
				fmt.Printf("  • %s\n", t)
			}
			if !history.LastUpdated.IsZero() {
				fmt.Printf("\nLast updated: %s\n", history.LastUpdated.Format(time.RFC1123))
			}
			return nil
		},
	}
}

func topicsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <topic>[,<topic>...]",
		Short: "Add comma separated topics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.Topics.Add(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Println("No new topics added")
				return nil
			}
			fmt.Printf("Added %d topic(s):\n", len(added))
			for _, t := range added {
				fmt.Printf("  • %s\n", t)
			}
			return nil
		},
	}
}

func topicsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset topics to the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.Topics.Reset(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Topics reset to %d defaults\n", len(current))
			return nil
		},
	}
}

// ============ DRAFT COMMANDS ============

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Review and publish generated drafts",
	}

	cmd.AddCommand(draftsListCmd())
	cmd.AddCommand(draftsApproveCmd())
	cmd.AddCommand(draftsPublishCmd())
	return cmd
}

func draftsListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			filter := storage.DefaultDraftFilter()
			filter.Limit = limit
			if status != "" {
				s := models.DraftStatus(status)
				filter.Status = &s
			}

			drafts, err := a.Repository.ListDrafts(ctx, filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Drafts (%d) ===\n\n", len(drafts))
			for _, d := range drafts {
				fmt.Printf("[%d] %s | %s\n", d.ID, d.Status, truncateStr(d.Title, 60))
				fmt.Printf("    Created: %s\n", d.CreatedAt.Format(time.RFC1123))
				if d.ShareURN != "" {
					fmt.Printf("    Shared:  %s\n", d.ShareURN)
				}
				if d.BlogURL != "" {
					fmt.Printf("    Blog:    %s\n", d.BlogURL)
				}
				if d.ErrorMessage != "" {
					fmt.Printf("    Error:   %s (retries: %d)\n", d.ErrorMessage, d.RetryCount)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, published, failed, rejected)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum drafts to show")
	return cmd
}

func draftsApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <draft-id>",
		Short: "Approve a pending draft without publishing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			draft, err := a.Publisher.Approve(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Draft %d approved. Use 'pipeline drafts publish %d' to share it.\n", draft.ID, draft.ID)
			return nil
		},
	}
}

func draftsPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <draft-id>",
		Short: "Share a draft on LinkedIn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Publisher.Publish(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Draft %d published: %s\n", res.DraftID, res.PostURN)
			return nil
		},
	}
}

// ============ BLOG COMMANDS ============

func blogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "HashNode blog commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publish <draft-id>",
		Short: "Expand a draft into an article and publish it on HashNode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := cfg.ValidateGeneration(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Publisher.PublishBlog(ctx, id)
			if err != nil {
				if res != nil && res.Code != "" {
					return fmt.Errorf("%w (%s)", err, res.Code)
				}
				return err
			}
			fmt.Printf("Article published (%d words): %s\n", res.WordCount, res.URL)
			return nil
		},
	})
	return cmd
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "LinkedIn OAuth management",
	}

	cmd.AddCommand(oauthLoginCmd())
	cmd.AddCommand(oauthStatusCmd())
	return cmd
}

func oauthLoginCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start LinkedIn OAuth login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.OAuth.Login(ctx, addr, func(authURL string) {
				fmt.Printf("\nPlease open this URL in your browser:\n%s\n", authURL)
			})
			if err != nil {
				return fmt.Errorf("OAuth failed: %w", err)
			}
			fmt.Println("\nAuthentication successful!")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address for the OAuth callback server")
	return cmd
}

func oauthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check OAuth token status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			valid, expiresAt, err := a.OAuth.TokenStatus(ctx)
			if err != nil || !valid {
				fmt.Println("Status: Not authenticated")
				fmt.Println("Run 'pipeline oauth login' to authenticate")
				return nil
			}

			fmt.Println("Status:     Valid")
			if expiresAt.IsZero() {
				fmt.Println("Expires at: never")
			} else {
				fmt.Printf("Expires at: %s\n", expiresAt.Format(time.RFC1123))
			}
			return nil
		},
	}
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid draft id %q", arg)
	}
	return uint(id), nil
}

func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
