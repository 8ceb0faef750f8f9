package domain

import "context"

// Source is the interface for platforms the relay listens on (Telegram).
type Source interface {
	Name() string
	Start(ctx context.Context, bus PostBus) error
	Stop() error
}
