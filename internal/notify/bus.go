// Package notify carries environment-pushed notifications (page visibility,
// fullscreen state, narration progress) from the client connection to the
// objects that react to them.
package notify

import (
	"sync"
	"time"
)

// Kind identifies the environment signal an Event reports.
type Kind string

const (
	KindVisibility       Kind = "VISIBILITY"
	KindFullscreen       Kind = "FULLSCREEN"
	KindFullscreenDenied Kind = "FULLSCREEN_DENIED"
	KindNarrationStarted Kind = "NARRATION_STARTED"
	KindNarrationEnded   Kind = "NARRATION_ENDED"
)

// Event is a single environment notification.
//
// For KindVisibility, Active reports that the page is visible.
// For KindFullscreen, Active reports that fullscreen is on.
// Narration events carry the Token of the utterance they refer to.
type Event struct {
	Kind   Kind
	Active bool
	Token  uint64
	Detail string
	At     time.Time
}

// Handler receives events. It runs on the publisher's goroutine.
type Handler func(Event)

// Bus fans events out to subscribers in publish order.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscription is a registered handler. Cancel it to stop deliveries.
type Subscription struct {
	bus   *Bus
	kinds map[Kind]struct{}
	fn    Handler

	mu     sync.Mutex
	closed bool
}

// Subscribe registers fn for the given kinds (all kinds when none are given).
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) *Subscription {
	sub := &Subscription{bus: b, fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub
}

// Publish delivers ev synchronously to every current subscriber interested
// in ev.Kind, in subscription order. A zero At is stamped with time.Now.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(ev.Kind) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *Subscription) wants(k Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(ev)
}

// Cancel removes the subscription. Once Cancel returns the handler is never
// invoked again. Cancel is idempotent but must not be called from inside the
// subscription's own handler.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	b := s.bus
	b.mu.Lock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}
