package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-mastodon"

	"github.com/tianheg/tg2mastodon/internal/domain"
)

// Mastodon implements domain.Publisher against a Mastodon instance.
type Mastodon struct {
	client *mastodon.Client
	logger *slog.Logger
}

type MastodonConfig struct {
	Server      string
	AccessToken string
	Logger      *slog.Logger
}

func NewMastodon(cfg MastodonConfig) *Mastodon {
	client := mastodon.NewClient(&mastodon.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})
	client.Timeout = 2 * time.Minute
	return &Mastodon{client: client, logger: cfg.Logger}
}

func (m *Mastodon) Name() string { return "mastodon" }

// PublishText posts a text-only status.
func (m *Mastodon) PublishText(ctx context.Context, text string) error {
	status, err := m.client.PostStatus(ctx, &mastodon.Toot{Status: text})
	if err != nil {
		return &domain.PublishError{Op: "status", Err: err}
	}
	m.logger.Info("status posted", "id", status.ID, "url", status.URL)
	return nil
}

// PublishMedia uploads the file, then posts a status referencing it. The
// caption may be empty. A failure after upload leaves an orphaned attachment
// on the instance.
func (m *Mastodon) PublishMedia(ctx context.Context, path string, caption string) error {
	attachment, err := m.client.UploadMedia(ctx, path)
	if err != nil {
		return &domain.PublishError{Op: "media-upload", Err: err}
	}

	status, err := m.client.PostStatus(ctx, &mastodon.Toot{
		Status:   caption,
		MediaIDs: []mastodon.ID{attachment.ID},
	})
	if err != nil {
		return &domain.PublishError{Op: "media-status", Err: err}
	}
	m.logger.Info("media status posted", "id", status.ID, "url", status.URL, "attachment", attachment.ID)
	return nil
}

// Healthy verifies the token by fetching the authenticated account.
func (m *Mastodon) Healthy(ctx context.Context) error {
	acct, err := m.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("mastodon not reachable: %w", err)
	}
	m.logger.Debug("mastodon account verified", "acct", acct.Acct)
	return nil
}
