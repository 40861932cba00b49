package domain

import "context"

// Channel is the interface for chat platform front-ends (Discord, Telegram).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
