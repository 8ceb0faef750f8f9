package domain

import "context"

// Publisher is the interface for platforms the relay posts to (Mastodon).
type Publisher interface {
	Name() string
	PublishText(ctx context.Context, text string) error
	PublishMedia(ctx context.Context, path string, caption string) error
	Healthy(ctx context.Context) error
}
