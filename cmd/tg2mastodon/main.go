package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tianheg/tg2mastodon/internal/bus"
	"github.com/tianheg/tg2mastodon/internal/channel"
	"github.com/tianheg/tg2mastodon/internal/config"
	"github.com/tianheg/tg2mastodon/internal/forward"
	"github.com/tianheg/tg2mastodon/internal/media"
	"github.com/tianheg/tg2mastodon/internal/metrics"
	"github.com/tianheg/tg2mastodon/internal/publisher"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	logger  *slog.Logger
	envFile string // overridable via --env-file flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "tg2mastodon",
		Short: "Relay Telegram channel posts to Mastodon",
		Long:  "tg2mastodon watches a Telegram channel through the Bot API and republishes every post (text and photos) as Mastodon statuses.",
		Args:  cobra.NoArgs,
		RunE:  runRelay,
	}

	root.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "path to a dotenv file (default: .env if present)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveEnvPath returns the env file path from --env-file or the default
// location used by init and daemon install. run and doctor read the process
// environment directly, so they only consult the flag.
func resolveEnvPath() string {
	if envFile != "" {
		return envFile
	}
	return config.DefaultEnvPath()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay daemon",
		Long:  "Connects to Telegram, polls the channel for new posts, and republishes each one to Mastodon. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tg2mastodon v%s\n", version)
		},
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)}))
	logger.Info("relay starting",
		"version", version,
		"instance", cfg.MastodonServer,
		"poll_interval", cfg.PollInterval(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayMetrics := metrics.NewRelay(nil)
	if err := relayMetrics.Register(); err != nil {
		logger.Warn("metrics registration failed", "err", err)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	// Post bus (closed during graceful shutdown below)
	postBus := bus.New(64, logger)

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:        cfg.TelegramToken,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
		Metrics:      relayMetrics,
	})

	// The Telegram channel doubles as the file resolver for photo downloads.
	transfer, err := media.NewTransfer(telegramCh, media.TransferConfig{
		Dir:    cfg.MediaDir,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("media transfer: %w", err)
	}

	mastodonPub := publisher.NewMastodon(publisher.MastodonConfig{
		Server:      cfg.MastodonServer,
		AccessToken: cfg.MastodonToken,
		Logger:      logger,
	})

	pipeline := forward.NewPipeline(forward.PipelineConfig{
		Publisher: mastodonPub,
		Fetcher:   transfer,
		Bus:       postBus,
		Logger:    logger,
		Metrics:   relayMetrics,
	})

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.Run(ctx)
	}()

	logger.Info("relay started. Press Ctrl+C to stop.")

	// Blocks until ctx is cancelled; only a startup failure comes back as an error.
	if err := telegramCh.Start(ctx, postBus); err != nil {
		postBus.Close()
		return fmt.Errorf("telegram channel: %w", err)
	}

	logger.Info("shutting down relay...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	postBus.Close()

	select {
	case <-pipelineDone:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
	}
	return nil
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
