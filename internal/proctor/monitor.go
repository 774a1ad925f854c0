// Package proctor turns environment notifications into an append-only
// violation log and a derived integrity score.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockai/mockai-backend/internal/notify"
)

// Reason enumerates violation causes.
type Reason string

const (
	ReasonTabSwitch      Reason = "TAB_SWITCH"
	ReasonFullscreenExit Reason = "FULLSCREEN_EXIT"
)

const (
	msgTabSwitch      = "User switched tabs (Potential Integrity Violation)"
	msgFullscreenExit = "User exited fullscreen mode"

	// PenaltyPerViolation is subtracted from a perfect score of 100 for each violation.
	PenaltyPerViolation = 15
)

// ErrFullscreenDenied is returned when the host refuses to enter fullscreen.
// It is always recoverable: the operator may retry.
var ErrFullscreenDenied = errors.New("fullscreen request denied")

// ViolationEvent is a single detected breach. It is never mutated once logged.
type ViolationEvent struct {
	Reason  Reason    `json:"reason"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a snapshot of the monitor.
type State struct {
	ViolationCount    int              `json:"violation_count"`
	Violations        []ViolationEvent `json:"violations"` // most recent first
	IsInFullscreen    bool             `json:"is_in_fullscreen"`
	FullscreenDenials int              `json:"fullscreen_denials"`
}

// IntegrityScore returns max(0, 100 - 15*count).
func IntegrityScore(violationCount int) int {
	score := 100 - PenaltyPerViolation*violationCount
	if score < 0 {
		return 0
	}
	return score
}

// Host is the environment that can be asked to enter fullscreen.
type Host interface {
	RequestFullscreen(ctx context.Context) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHost sets the host used by RequestFullscreen.
func WithHost(h Host) Option {
	return func(m *Monitor) { m.host = h }
}

// WithViolationHook registers fn to be called after each violation is logged.
// fn runs on the notifying goroutine, outside the monitor's lock.
func WithViolationHook(fn func(ViolationEvent, State)) Option {
	return func(m *Monitor) { m.onViolation = fn }
}

// WithHistory seeds the log with violations recorded earlier for the same
// interview, most recent first. The count is derived from the log so the
// count/log invariant holds from the start.
func WithHistory(vs []ViolationEvent) Option {
	return func(m *Monitor) {
		m.state.Violations = append([]ViolationEvent{}, vs...)
		m.state.ViolationCount = len(vs)
	}
}

// Monitor observes visibility and fullscreen transitions. It has no
// goroutines of its own; it only reacts to events published on its bus.
type Monitor struct {
	bus         *notify.Bus
	host        Host
	onViolation func(ViolationEvent, State)
	log         zerolog.Logger

	mu    sync.Mutex
	sub   *notify.Subscription
	state State
}

// NewMonitor creates a stopped Monitor bound to bus.
func NewMonitor(bus *notify.Bus, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		bus: bus,
		log: log.With().Str("component", "proctor").Logger(),
		state: State{
			IsInFullscreen: true,
			Violations:     []ViolationEvent{},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins observation. Calling it again while running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return
	}
	m.sub = m.bus.Subscribe(m.handle,
		notify.KindVisibility,
		notify.KindFullscreen,
		notify.KindFullscreenDenied,
	)
}

// Stop ends observation. It is idempotent and safe to defer on every
// teardown path; no event is handled after it returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Running reports whether the monitor is subscribed.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}

func (m *Monitor) handle(ev notify.Event) {
	switch ev.Kind {
	case notify.KindVisibility:
		if !ev.Active {
			m.record(ReasonTabSwitch, msgTabSwitch, ev.At)
		}
	case notify.KindFullscreen:
		if ev.Active {
			m.mu.Lock()
			m.state.IsInFullscreen = true
			m.mu.Unlock()
			return
		}
		m.mu.Lock()
		m.state.IsInFullscreen = false
		m.mu.Unlock()
		m.record(ReasonFullscreenExit, msgFullscreenExit, ev.At)
	case notify.KindFullscreenDenied:
		m.denied(errors.New(ev.Detail))
	}
}

func (m *Monitor) record(reason Reason, msg string, at time.Time) {
	v := ViolationEvent{Reason: reason, Message: msg, At: at}

	m.mu.Lock()
	m.state.Violations = append([]ViolationEvent{v}, m.state.Violations...)
	m.state.ViolationCount++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Warn().
		Str("reason", string(reason)).
		Int("violation_count", snap.ViolationCount).
		Msg("Integrity violation")

	if m.onViolation != nil {
		m.onViolation(v, snap)
	}
}

func (m *Monitor) denied(cause error) {
	m.mu.Lock()
	m.state.FullscreenDenials++
	denials := m.state.FullscreenDenials
	m.mu.Unlock()

	m.log.Warn().Err(cause).Int("denials", denials).Msg("Fullscreen denied, awaiting retry")
}

// RequestFullscreen asks the host to (re-)enter fullscreen. A refusal is
// logged and returned wrapped in ErrFullscreenDenied; it never stops the monitor.
func (m *Monitor) RequestFullscreen(ctx context.Context) error {
	if m.host == nil {
		return fmt.Errorf("%w: no host attached", ErrFullscreenDenied)
	}
	if err := m.host.RequestFullscreen(ctx); err != nil {
		m.denied(err)
		return fmt.Errorf("%w: %v", ErrFullscreenDenied, err)
	}
	return nil
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ViolationCount returns the number of violations logged so far.
func (m *Monitor) ViolationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ViolationCount
}

// IntegrityScore is recomputed from the current violation count.
func (m *Monitor) IntegrityScore() int {
	return IntegrityScore(m.ViolationCount())
}

func (m *Monitor) snapshotLocked() State {
	s := m.state
	s.Violations = make([]ViolationEvent, len(m.state.Violations))
	copy(s.Violations, m.state.Violations)
	return s
}
