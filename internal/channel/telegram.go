package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tianheg/tg2mastodon/internal/domain"
	"github.com/tianheg/tg2mastodon/internal/metrics"
)

const (
	telegramLongPollSeconds = 30
	pollRetryDelay          = 3 * time.Second
)

// Telegram implements domain.Source for Telegram channels. It polls the Bot
// API for channel_post updates and feeds them onto the post bus.
type Telegram struct {
	token        string
	endpoint     string
	pollInterval time.Duration
	retryDelay   time.Duration

	bot     *tgbotapi.BotAPI
	bus     domain.PostBus
	logger  *slog.Logger
	metrics *metrics.Relay
}

type TelegramConfig struct {
	Token        string
	PollInterval time.Duration
	APIEndpoint  string // override for tests (default: Telegram Bot API)
	Logger       *slog.Logger
	Metrics      *metrics.Relay
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	return &Telegram{
		token:        cfg.Token,
		endpoint:     cfg.APIEndpoint,
		pollInterval: cfg.PollInterval,
		retryDelay:   pollRetryDelay,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) connect() error {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// Start connects to Telegram and polls for channel posts until ctx is
// cancelled. One bad update or failed poll never stops the loop.
func (t *Telegram) Start(ctx context.Context, bus domain.PostBus) error {
	t.bus = bus

	if err := t.connect(); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramLongPollSeconds
	u.AllowedUpdates = []string{"channel_post"}

	t.logger.Info("telegram polling started", "interval", t.pollInterval)

	for {
		if ctx.Err() != nil {
			t.logger.Info("telegram channel stopping")
			return nil
		}

		updates, err := t.bot.GetUpdates(u)
		if err != nil {
			t.metrics.RecordPollError()
			t.logger.Error("telegram getUpdates failed, retrying", "err", err, "delay", t.retryDelay)
			if !sleepCtx(ctx, t.retryDelay) {
				t.logger.Info("telegram channel stopping")
				return nil
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= u.Offset {
				u.Offset = update.UpdateID + 1
			}
			t.handleUpdate(update)
		}
		t.metrics.RecordPollCycle()

		if !sleepCtx(ctx, t.pollInterval) {
			t.logger.Info("telegram channel stopping")
			return nil
		}
	}
}

// Stop is a no-op: the poll loop stops when Start's context is cancelled.
func (t *Telegram) Stop() error {
	return nil
}

// ResolveFileURL turns a Telegram file ID into a direct download URL.
func (t *Telegram) ResolveFileURL(_ context.Context, fileID string) (string, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("telegram getFile: %w", err)
	}
	return file.Link(t.token), nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.ChannelPost
	if msg == nil || msg.Chat == nil {
		return
	}

	post := domain.ChannelPost{
		MessageID: msg.MessageID,
		ChatID:    msg.Chat.ID,
		ChatTitle: msg.Chat.Title,
		Text:      msg.Text,
		Caption:   msg.Caption,
		Photo:     convertPhoto(msg.Photo),
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	if !post.HasText() && !post.HasPhoto() {
		t.logger.Debug("skipping channel post without text or photo",
			"chat", msg.Chat.Title,
			"message_id", msg.MessageID,
		)
		return
	}

	kind := postKind(post)
	t.metrics.RecordPostReceived(kind)
	t.logger.Info("channel post received",
		"chat", msg.Chat.Title,
		"message_id", msg.MessageID,
		"kind", kind,
	)

	t.bus.Publish(post)
}

func convertPhoto(sizes []tgbotapi.PhotoSize) []domain.PhotoVariant {
	if len(sizes) == 0 {
		return nil
	}
	variants := make([]domain.PhotoVariant, 0, len(sizes))
	for _, s := range sizes {
		variants = append(variants, domain.PhotoVariant{
			FileID:   s.FileID,
			Width:    s.Width,
			Height:   s.Height,
			FileSize: int64(s.FileSize),
		})
	}
	return variants
}

func postKind(post domain.ChannelPost) string {
	switch {
	case post.HasText() && post.HasPhoto():
		return metrics.KindTextPhoto
	case post.HasPhoto():
		return metrics.KindPhoto
	default:
		return metrics.KindText
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false when the
// context ended the wait.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
