package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/campushub/docsearch/internal/notify"
	"github.com/campushub/docsearch/internal/pipeline"
)

// FeedChannel delivers notifications into a running Bubble Tea program so
// they show up in the monitor's feed.
type FeedChannel struct {
	program *tea.Program
}

// NewFeedChannel wires notification delivery to the given program.
func NewFeedChannel(program *tea.Program) *FeedChannel {
	return &FeedChannel{program: program}
}

func (c *FeedChannel) Name() string { return "tui" }

// Deliver sends the notification into the update loop. Send never blocks the
// caller for long; the program buffers messages internally.
func (c *FeedChannel) Deliver(ctx context.Context, n notify.Notification) error {
	c.program.Send(NotificationMsg(n))
	return nil
}

// ForwardTransitions pumps job transitions from the subject into the program
// until the subscription channel closes or the context is cancelled. The
// returned cancel function removes the subscription.
func ForwardTransitions(ctx context.Context, subject *pipeline.Subject, program *tea.Program) func() {
	ch, cancel := subject.Subscribe()
	go func() {
		for {
			select {
			case tr, ok := <-ch:
				if !ok {
					return
				}
				program.Send(TransitionMsg(tr))
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
