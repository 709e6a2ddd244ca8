package notify

import (
	"context"

	"github.com/campushub/docsearch/internal/logger"
)

// FuncChannel adapts a callback into a Channel. The in-app listener and
// external collaborators (browser, email) register through it.
type FuncChannel struct {
	ChannelName string
	Fn          func(ctx context.Context, n Notification) error
}

func (c FuncChannel) Name() string { return c.ChannelName }

func (c FuncChannel) Deliver(ctx context.Context, n Notification) error {
	return c.Fn(ctx, n)
}

// LogChannel writes notifications to the verbose log.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Deliver(ctx context.Context, n Notification) error {
	logger.Info("[%s] %s: %s", n.Type, n.Title, n.Message)
	return nil
}
