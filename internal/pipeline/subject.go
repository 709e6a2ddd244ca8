package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/docsearch/internal/logger"
)

// Transition is one observed status change of a processing job.
type Transition struct {
	DocumentID uuid.UUID
	From       Status
	To         Status
	Progress   int
	Message    string
	Err        string
	At         time.Time
}

const subscriberBuffer = 16

// Subject is an explicit publish-subscribe hub for job transitions. The
// state machine publishes to it; the notifier and any UI adapter subscribe.
// Publishing never blocks: a subscriber that falls behind drops transitions.
type Subject struct {
	mu     sync.Mutex
	subs   map[int]chan Transition
	nextID int
	closed bool
}

// NewSubject creates an empty subject.
func NewSubject() *Subject {
	return &Subject{subs: make(map[int]chan Transition)}
}

// Subscribe registers a new listener. The returned cancel function removes
// the subscription and closes its channel.
func (s *Subject) Subscribe() (<-chan Transition, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Transition, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the transition to every subscriber without blocking.
func (s *Subject) Publish(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- t:
		default:
			logger.Warn("Subscriber %d is slow, dropping transition for %s", id, t.DocumentID)
		}
	}
}

// Close shuts down the subject and closes all subscriber channels.
func (s *Subject) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
