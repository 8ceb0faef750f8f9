package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tianheg/tg2mastodon/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based post bus that hands posts from the
// source listener to the forwarding loop.
type InMemoryBus struct {
	inbound chan domain.ChannelPost
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &InMemoryBus{
		inbound: make(chan domain.ChannelPost, bufferSize),
		logger:  logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(post domain.ChannelPost) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- post:
	default:
		// Bus full, wait with timeout instead of dropping
		b.logger.Warn("post bus full, waiting...", "chat", post.ChatTitle, "message_id", post.MessageID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- post:
			b.logger.Info("post delivered after wait", "message_id", post.MessageID)
		case <-timer.C:
			b.logger.Error("post dropped: bus full for 10s",
				"chat", post.ChatTitle,
				"message_id", post.MessageID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ChannelPost {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
