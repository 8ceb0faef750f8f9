package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tianheg/tg2mastodon/internal/domain"
	"github.com/tianheg/tg2mastodon/internal/media"
	"github.com/tianheg/tg2mastodon/internal/metrics"
)

// MediaFetcher downloads post media to local disk and releases it afterwards.
type MediaFetcher interface {
	Download(ctx context.Context, variants []domain.PhotoVariant) (*media.Handle, error)
	Release(h *media.Handle)
}

// Pipeline republishes channel posts on the destination platform.
type Pipeline struct {
	publisher domain.Publisher
	fetcher   MediaFetcher
	bus       domain.PostBus
	logger    *slog.Logger
	metrics   *metrics.Relay
}

type PipelineConfig struct {
	Publisher domain.Publisher
	Fetcher   MediaFetcher
	Bus       domain.PostBus
	Logger    *slog.Logger
	Metrics   *metrics.Relay
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		publisher: cfg.Publisher,
		fetcher:   cfg.Fetcher,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Run consumes posts until ctx is cancelled or the bus closes. Posts are
// forwarded one at a time in arrival order; a failed post is logged and the
// loop moves on.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("forwarding loop started")

	inbound := p.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("forwarding loop stopping")
			return
		case post, ok := <-inbound:
			if !ok {
				p.logger.Info("post bus closed, forwarding loop stopping")
				return
			}
			if err := p.Handle(ctx, post); err != nil {
				p.logger.Error("post not fully forwarded",
					"chat", post.ChatTitle,
					"message_id", post.MessageID,
					"err", err,
				)
			}
		}
	}
}

// Handle forwards one channel post. Text and photo are published
// independently: a text failure does not suppress the photo attempt, and the
// returned error collects whatever went wrong.
func (p *Pipeline) Handle(ctx context.Context, post domain.ChannelPost) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordForwardFailure(metrics.StagePanic)
			p.logger.Error("forward panic",
				"chat", post.ChatTitle,
				"message_id", post.MessageID,
				"panic", r,
			)
			err = fmt.Errorf("forward panic: %v", r)
		}
	}()

	var errs []error

	if post.HasText() {
		start := time.Now()
		if terr := p.publisher.PublishText(ctx, post.Text); terr != nil {
			p.metrics.RecordForwardFailure(metrics.StagePublishText)
			p.logger.Error("text publish failed",
				"chat", post.ChatTitle,
				"message_id", post.MessageID,
				"err", terr,
			)
			errs = append(errs, terr)
		} else {
			p.metrics.RecordPublish("status", time.Since(start))
			p.logger.Info("text forwarded",
				"chat", post.ChatTitle,
				"message_id", post.MessageID,
				"text", truncate(post.Text, 50),
			)
		}
	}

	if post.HasPhoto() {
		if merr := p.forwardPhoto(ctx, post); merr != nil {
			errs = append(errs, merr)
		}
	}

	if len(errs) == 0 && (post.HasText() || post.HasPhoto()) {
		p.metrics.RecordPostForwarded()
	}
	return errors.Join(errs...)
}

// forwardPhoto downloads the largest photo variant, publishes it with the
// caption, and always releases the local file afterwards.
func (p *Pipeline) forwardPhoto(ctx context.Context, post domain.ChannelPost) error {
	handle, err := p.fetcher.Download(ctx, post.Photo)
	if err != nil {
		p.metrics.RecordForwardFailure(metrics.StageTransfer)
		p.logger.Error("media download failed",
			"chat", post.ChatTitle,
			"message_id", post.MessageID,
			"err", err,
		)
		return err
	}
	defer p.fetcher.Release(handle)

	p.metrics.RecordMediaDownload(handle.Size)

	start := time.Now()
	if err := p.publisher.PublishMedia(ctx, handle.Path, post.Caption); err != nil {
		p.metrics.RecordForwardFailure(metrics.StagePublishMedia)
		p.logger.Error("media publish failed",
			"chat", post.ChatTitle,
			"message_id", post.MessageID,
			"err", err,
		)
		return err
	}
	p.metrics.RecordPublish("media", time.Since(start))
	p.logger.Info("photo forwarded",
		"chat", post.ChatTitle,
		"message_id", post.MessageID,
		"caption", truncate(post.Caption, 50),
	)
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
