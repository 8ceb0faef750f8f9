package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tianheg/tg2mastodon/internal/config"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup: Telegram → Mastodon → save env file",
		Long:  "Guides you through the Telegram bot token, Mastodon instance and access token, and the polling interval. Writes an env file to the path used by --env-file or ~/.tg2mastodon/env.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	envPath := resolveEnvPath()

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Telegram
	fmt.Println("\n--- Step 1: Telegram ---")
	fmt.Fprint(os.Stdout, "Bot token (from @BotFather)")
	botToken, err := prompt("")
	if err != nil {
		return err
	}
	fmt.Println("  Add the bot to your channel as an admin so it receives posts.")

	// Step 2: Mastodon
	fmt.Println("\n--- Step 2: Mastodon ---")
	fmt.Fprint(os.Stdout, "Instance URL")
	instance, err := prompt("https://mastodon.social")
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "Access token (Preferences > Development > New application)")
	accessToken, err := prompt("")
	if err != nil {
		return err
	}

	// Step 3: Polling
	fmt.Println("\n--- Step 3: Polling ---")
	fmt.Fprint(os.Stdout, "Seconds between channel polls")
	intervalStr, err := prompt("3600")
	if err != nil {
		return err
	}
	interval, err := strconv.ParseFloat(intervalStr, 64)
	if err != nil {
		return fmt.Errorf("poll interval must be a number: %w", err)
	}

	cfg := &config.Config{
		TelegramToken:  botToken,
		MastodonToken:  accessToken,
		MastodonServer: instance,
		PollSeconds:    interval,
		LogLevel:       "info",
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.WriteEnvFile(envPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nSettings saved to %s\n", envPath)
	fmt.Printf("Next: 'tg2mastodon doctor --env-file %s' to verify, then 'tg2mastodon run --env-file %s'.\n", envPath, envPath)
	return nil
}
