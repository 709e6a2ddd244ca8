// Package notify turns processing-job transitions into user notifications
// and fans them out to registered delivery channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/docsearch/internal/logger"
	"github.com/campushub/docsearch/internal/pipeline"
)

// Type classifies a notification.
type Type string

const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
	TypeWarning  Type = "warning"
)

// DefaultHistoryCap bounds the retained notification history.
const DefaultHistoryCap = 100

// Notification is an immutable record of one qualifying status transition.
// Only its Read flag is ever mutated.
type Notification struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Type       Type
	Title      string
	Message    string
	At         time.Time
	Read       bool
	Action     string
}

// Preferences toggles which transitions produce notifications.
type Preferences struct {
	NotifyOnProgress bool
	NotifyOnComplete bool
	NotifyOnError    bool
}

// DefaultPreferences notifies on completion and failure but not on
// intermediate progress.
func DefaultPreferences() Preferences {
	return Preferences{NotifyOnComplete: true, NotifyOnError: true}
}

// Channel delivers notifications to one destination (in-app feed, browser,
// audible cue, email). Delivery is attempted, not guaranteed; a channel
// failure never affects other channels or the underlying transition.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Notifier subscribes to state-machine transitions for a set of monitored
// documents, applies the notification policy, and dispatches to channels.
// Construct with New, wire with Start, release with Stop.
type Notifier struct {
	mu           sync.Mutex
	prefs        Preferences
	channels     []Channel
	history      []Notification
	historyCap   int
	monitored    map[uuid.UUID]struct{}
	lastNotified map[uuid.UUID]pipeline.Status
	unsubscribe  func()
	done         chan struct{}
}

// New creates a notifier with the given preferences and delivery channels.
func New(prefs Preferences, channels ...Channel) *Notifier {
	return &Notifier{
		prefs:        prefs,
		channels:     channels,
		historyCap:   DefaultHistoryCap,
		monitored:    make(map[uuid.UUID]struct{}),
		lastNotified: make(map[uuid.UUID]pipeline.Status),
	}
}

// Start subscribes to the subject and consumes transitions until Stop is
// called or the context is cancelled.
func (n *Notifier) Start(ctx context.Context, subject *pipeline.Subject) {
	ch, cancel := subject.Subscribe()
	n.mu.Lock()
	n.unsubscribe = cancel
	n.done = make(chan struct{})
	done := n.done
	n.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case tr, ok := <-ch:
				if !ok {
					return
				}
				n.HandleTransition(ctx, tr)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes from the subject and waits for the consumer to finish.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel := n.unsubscribe
	done := n.done
	n.unsubscribe = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StartMonitoring begins producing notifications for a document's job.
func (n *Notifier) StartMonitoring(documentID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.monitored[documentID] = struct{}{}
}

// StopMonitoring stops producing notifications for a document's job.
func (n *Notifier) StopMonitoring(documentID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.monitored, documentID)
	delete(n.lastNotified, documentID)
}

// HandleTransition applies the notification policy to one transition,
// producing at most one notification regardless of how many channels are
// attached.
func (n *Notifier) HandleTransition(ctx context.Context, tr pipeline.Transition) {
	notification, ok := n.evaluate(tr)
	if !ok {
		return
	}
	n.dispatch(ctx, notification)
}

// evaluate decides whether the transition qualifies and records it so the
// same transition never notifies twice.
func (n *Notifier) evaluate(tr pipeline.Transition) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.monitored[tr.DocumentID]; !ok {
		return Notification{}, false
	}
	// Progress updates within a stage and replays of an already-notified
	// status do not re-notify.
	if n.lastNotified[tr.DocumentID] == tr.To {
		return Notification{}, false
	}

	var kind Type
	switch {
	case tr.To == pipeline.StatusCompleted:
		if !n.prefs.NotifyOnComplete {
			return Notification{}, false
		}
		kind = TypeComplete
	case tr.To == pipeline.StatusFailed:
		if !n.prefs.NotifyOnError {
			return Notification{}, false
		}
		kind = TypeError
	case tr.From == pipeline.StatusFailed:
		// A retry returning to an active stage is worth a warning even
		// when progress notifications are off.
		if !n.prefs.NotifyOnError && !n.prefs.NotifyOnProgress {
			return Notification{}, false
		}
		kind = TypeWarning
	default:
		if !n.prefs.NotifyOnProgress {
			return Notification{}, false
		}
		kind = TypeProgress
	}

	n.lastNotified[tr.DocumentID] = tr.To

	notification := Notification{
		ID:         uuid.New(),
		DocumentID: tr.DocumentID,
		Type:       kind,
		Title:      title(kind, tr),
		Message:    message(kind, tr),
		At:         tr.At,
	}
	n.appendLocked(notification)
	return notification, true
}

// dispatch fans the notification out to every channel. Each channel's
// failure is isolated: it is logged and does not block the others.
func (n *Notifier) dispatch(ctx context.Context, notification Notification) {
	n.mu.Lock()
	channels := make([]Channel, len(n.channels))
	copy(channels, n.channels)
	n.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Deliver(ctx, notification); err != nil {
			logger.Warn("Notification delivery via %s failed: %v", ch.Name(), err)
		}
	}
}

// appendLocked adds to history, evicting oldest-first beyond the cap.
// Callers must hold the mutex.
func (n *Notifier) appendLocked(notification Notification) {
	n.history = append(n.history, notification)
	if len(n.history) > n.historyCap {
		n.history = n.history[len(n.history)-n.historyCap:]
	}
}

// History returns a copy of the retained notifications, oldest first.
func (n *Notifier) History() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.history))
	copy(out, n.history)
	return out
}

// Unread counts notifications whose read flag is not set.
func (n *Notifier) Unread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, h := range n.history {
		if !h.Read {
			count++
		}
	}
	return count
}

// MarkRead flips one notification's read flag. Returns false when the id is
// not in history.
func (n *Notifier) MarkRead(id uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.history {
		if n.history[i].ID == id {
			n.history[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flips every notification's read flag.
func (n *Notifier) MarkAllRead() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.history {
		n.history[i].Read = true
	}
}

func title(kind Type, tr pipeline.Transition) string {
	switch kind {
	case TypeComplete:
		return "Document ready"
	case TypeError:
		return "Processing failed"
	case TypeWarning:
		return "Retrying processing"
	default:
		return "Processing update"
	}
}

func message(kind Type, tr pipeline.Transition) string {
	if kind == TypeError && tr.Err != "" {
		return fmt.Sprintf("%s: %s", tr.Message, tr.Err)
	}
	return fmt.Sprintf("%s (%d%%)", tr.Message, tr.Progress)
}
