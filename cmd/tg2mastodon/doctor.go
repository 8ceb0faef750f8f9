package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/tianheg/tg2mastodon/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mattn/go-mastodon"
	"github.com/spf13/cobra"
)

const doctorTimeout = 10 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies that the environment configuration, media directory, Telegram
credentials, and Mastodon credentials are correctly set up. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tg2mastodon doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config loads and validates
			cfg, err := config.Load(envFile)
			if err != nil {
				printFail("Config", err.Error())
				failed++
				fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
				fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				fmt.Printf("\nSet the required environment variables (or pass --env-file) and retry.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			sanitized := config.Sanitize(cfg)
			printPass("Config", fmt.Sprintf("poll every %s, log level %s", cfg.PollInterval(), cfg.LogLevel))
			passed++

			// 2. Media directory writable
			mediaDir := cfg.MediaDir
			if mediaDir == "" {
				mediaDir = os.TempDir()
			}
			if err := checkMediaDir(mediaDir); err != nil {
				printFail("Media dir", err.Error())
				failed++
			} else {
				printPass("Media dir", mediaDir)
				passed++
			}

			ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
			defer cancel()

			// 3. Telegram credentials (getMe)
			if username, err := checkTelegram(cfg.TelegramToken); err != nil {
				printFail("Telegram bot", fmt.Sprintf("%s: %v", sanitized.TelegramToken, err))
				failed++
			} else {
				printPass("Telegram bot", "@"+username)
				passed++
			}

			// 4. Mastodon credentials (verify current account)
			if acct, err := checkMastodon(ctx, cfg.MastodonServer, cfg.MastodonToken); err != nil {
				printFail("Mastodon account", fmt.Sprintf("%s: %v", sanitized.MastodonToken, err))
				failed++
			} else {
				printPass("Mastodon account", fmt.Sprintf("@%s on %s", acct, cfg.MastodonServer))
				passed++
			}

			// 5. Metrics address bindable
			if cfg.MetricsAddr != "" {
				if err := checkAddr(cfg.MetricsAddr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.MetricsAddr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.MetricsAddr+" available")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before starting the relay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe relay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The relay is ready to run.\n")
			}
			return nil
		},
	}
}

func checkMediaDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	probe, err := os.CreateTemp(dir, "tg2mastodon-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func checkTelegram(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: doctorTimeout})
	if err != nil {
		return "", err
	}
	return bot.Self.UserName, nil
}

func checkMastodon(ctx context.Context, server, token string) (string, error) {
	client := mastodon.NewClient(&mastodon.Config{Server: server, AccessToken: token})
	client.Timeout = doctorTimeout
	account, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return account.Acct, nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
