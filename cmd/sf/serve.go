package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/velomade/shopfloor/internal/api"
	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/db"
	"github.com/velomade/shopfloor/internal/notify"
	"github.com/velomade/shopfloor/internal/rebalance"
	"github.com/velomade/shopfloor/internal/scoring"
	"github.com/velomade/shopfloor/internal/workflow"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Shopfloor API server and scheduled rebalancer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shopfloor.yaml", "path to Shopfloor config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	// Optional .env overlay for adapter tokens.
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "shopfloor").Logger()

	gormDB, err := db.Connect(cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	cache := scoring.NewCache()
	machine, err := workflow.NewMachine(workflow.Opts{
		DB:       gormDB,
		Weights:  cfg.Scoring,
		Notifier: notifier,
		Cache:    cache,
		Logger:   &logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Rebalance.Schedule, func() {
		moved, err := rebalance.Run(gormDB, cache, os.Stdout, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("rebalance pass failed")
			return
		}
		if moved > 0 {
			logger.Info().Int("moved", moved).Msg("rebalance pass")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule rebalance %q: %w", cfg.Rebalance.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	return api.Start(ctx, api.StartOpts{
		DB:      gormDB,
		Machine: machine,
		Cache:   cache,
		Port:    cfg.Server.Port,
		Logger:  logger,
	})
}

// buildNotifier wires the enabled notification adapters. With none enabled
// the machine runs without notifications.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) (notify.Notifier, error) {
	var notifiers notify.Multi

	if cfg.Notify.Slack.Enabled {
		slack, err := notify.NewSlack(os.Getenv("SLACK_BOT_TOKEN"), cfg.Notify.Slack.ChannelID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, slack)
		logger.Info().Str("channel", cfg.Notify.Slack.ChannelID).Msg("slack notifications enabled")
	}
	if cfg.Notify.Discord.Enabled {
		discord, err := notify.NewDiscord(os.Getenv("DISCORD_BOT_TOKEN"), cfg.Notify.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, discord)
		logger.Info().Str("channel", cfg.Notify.Discord.ChannelID).Msg("discord notifications enabled")
	}

	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, nil
}
