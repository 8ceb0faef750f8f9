package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the runtime configuration for the relay. Every value comes from
// the environment; Load reads an optional .env file first.
type Config struct {
	TelegramToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	MastodonToken  string  `env:"MASTODON_ACCESS_TOKEN"`
	MastodonServer string  `env:"MASTODON_INSTANCE_URL"`
	PollSeconds    float64 `env:"POLLING_INTERVAL" envDefault:"3600"` // fractional seconds between polls
	LogLevel       string  `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr    string  `env:"METRICS_ADDR"` // empty = metrics endpoint disabled
	MediaDir       string  `env:"MEDIA_DIR"`    // empty = os.TempDir()
}

// PollInterval returns the delay between Telegram update polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds * float64(time.Second))
}

// DefaultEnvDir returns the relay's own directory (~/.tg2mastodon).
func DefaultEnvDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tg2mastodon"
	}
	return filepath.Join(home, ".tg2mastodon")
}

// DefaultEnvPath returns the default location of the env file written by init.
func DefaultEnvPath() string {
	return filepath.Join(DefaultEnvDir(), "env")
}

// Load reads configuration from the environment. When envFile is non-empty it
// is loaded first and must exist; otherwise a .env in the working directory is
// picked up when present. Real environment variables win over file values.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("cannot load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// WriteEnvFile saves the configuration as a dotenv file that Load can read
// back. Tokens end up on disk, so the file is not group or world readable.
func WriteEnvFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	vars := map[string]string{
		"TELEGRAM_BOT_TOKEN":    cfg.TelegramToken,
		"MASTODON_ACCESS_TOKEN": cfg.MastodonToken,
		"MASTODON_INSTANCE_URL": cfg.MastodonServer,
		"POLLING_INTERVAL":      strconv.FormatFloat(cfg.PollSeconds, 'f', -1, 64),
	}
	if cfg.LogLevel != "" {
		vars["LOG_LEVEL"] = cfg.LogLevel
	}
	if cfg.MetricsAddr != "" {
		vars["METRICS_ADDR"] = cfg.MetricsAddr
	}
	if cfg.MediaDir != "" {
		vars["MEDIA_DIR"] = cfg.MediaDir
	}

	content, err := godotenv.Marshal(vars)
	if err != nil {
		return fmt.Errorf("cannot marshal env file: %w", err)
	}

	return os.WriteFile(path, []byte(content+"\n"), 0o600)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.TelegramToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.MastodonToken == "" {
		errs = append(errs, "MASTODON_ACCESS_TOKEN is required")
	}
	if cfg.MastodonServer == "" {
		errs = append(errs, "MASTODON_INSTANCE_URL is required")
	} else if u, err := url.Parse(cfg.MastodonServer); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "MASTODON_INSTANCE_URL must be an absolute http(s) URL")
	}
	if cfg.PollSeconds <= 0 {
		errs = append(errs, "POLLING_INTERVAL must be a positive number of seconds")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	copy := *cfg
	if copy.TelegramToken != "" {
		copy.TelegramToken = maskString(copy.TelegramToken)
	}
	if copy.MastodonToken != "" {
		copy.MastodonToken = maskString(copy.MastodonToken)
	}
	return &copy
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
