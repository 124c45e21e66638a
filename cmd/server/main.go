package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkedin-pipeline/internal/app"
	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/workflow"
	"github.com/linkedin-pipeline/pkg/logger"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pipeline-server",
		Short: "Scheduled pipeline runs and Slack review callbacks",
		Long: `Runs the pipeline on its cron schedule and serves the Slack
interactive/events endpoints and the workflow API.
This daemon should be run as a service for autonomous operation.`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	if err := cfg.ValidateScraper(); err != nil {
		return err
	}
	if err := cfg.ValidateGeneration(); err != nil {
		return err
	}

	log.Info().Msg("Starting pipeline server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
		}
		if err := a.Scheduler.Start(ctx, cfg.Scheduler.Cron, loc, workflow.Params{}); err != nil {
			return err
		}
		defer a.Scheduler.Stop()
	}

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	err = a.Server(ctx).ListenAndServe(ctx, addr,
		config.Duration(cfg.Server.ReadTimeout, 300*time.Second),
		config.Duration(cfg.Server.WriteTimeout, 300*time.Second))

	log.Info().Msg("Shutting down pipeline server")
	return err
}
