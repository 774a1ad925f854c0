// Package interview sequences a fixed question set through narration and
// candidate answers, gating progress on narration completion.
package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockai/mockai-backend/internal/notify"
)

// Phase is the session's position in its lifecycle.
type Phase string

const (
	PhaseNotStarted     Phase = "NOT_STARTED"
	PhaseNarrating      Phase = "NARRATING"
	PhaseAwaitingAnswer Phase = "AWAITING_ANSWER"
	PhaseFinished       Phase = "FINISHED"
)

// DefaultSettleDelay separates an answer from the next question's narration.
const DefaultSettleDelay = 1500 * time.Millisecond

// Transition errors. None of them changes session state.
var (
	ErrAlreadyStarted = errors.New("interview already started")
	ErrNotStarted     = errors.New("interview not started")
	ErrNarrating      = errors.New("question is still being narrated")
	ErrFinished       = errors.New("interview already finished")
)

// FallbackQuestions replaces an empty question set.
var FallbackQuestions = []string{
	"Tell me about a time you failed and how you handled it.",
	"Explain the difference between TCP and UDP.",
	"How do you handle conflict in a team setting?",
	"Describe a challenging technical problem you solved recently.",
}

// FocusRequester asks the host for exclusive fullscreen focus.
type FocusRequester interface {
	RequestFullscreen(ctx context.Context) error
}

// ViolationCounter reports the proctoring violation count at hand-off time.
type ViolationCounter interface {
	ViolationCount() int
}

// Handoff receives the end of the interview. It is called exactly once.
type Handoff interface {
	HandOff(ctx context.Context, finalViolations int)
}

// HandoffFunc adapts a function to Handoff.
type HandoffFunc func(ctx context.Context, finalViolations int)

// HandOff calls f.
func (f HandoffFunc) HandOff(ctx context.Context, n int) { f(ctx, n) }

// State is a read-only view of a session.
type State struct {
	Phase    Phase  `json:"phase"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Question string `json:"question"`
	Locked   bool   `json:"locked"`
	Speaking bool   `json:"speaking"`
}

// Option configures a Session.
type Option func(*Session)

// WithFocus sets the host asked for fullscreen on Begin.
func WithFocus(f FocusRequester) Option { return func(s *Session) { s.focus = f } }

// WithViolations sets where the final violation count is read from.
func WithViolations(v ViolationCounter) Option { return func(s *Session) { s.violations = v } }

// WithHandoff sets the results collaborator.
func WithHandoff(h Handoff) Option { return func(s *Session) { s.handoff = h } }

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option { return func(s *Session) { s.settle = d } }

// WithRate sets the narration rate multiplier.
func WithRate(r float64) Option { return func(s *Session) { s.rate = r } }

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l.With().Str("component", "interview_session").Logger() }
}

// WithAfterFunc replaces time.AfterFunc for scheduling delayed narration.
func WithAfterFunc(fn func(time.Duration, func()) (stop func() bool)) Option {
	return func(s *Session) { s.afterFunc = fn }
}

// Session drives one interview. It owns its question set and phase; both
// change only through Begin, Advance and narration notifications.
type Session struct {
	questions  []string
	narrator   Narrator
	focus      FocusRequester
	violations ViolationCounter
	handoff    Handoff
	settle     time.Duration
	rate       float64
	log        zerolog.Logger
	afterFunc  func(time.Duration, func()) func() bool

	ctx    context.Context
	cancel context.CancelFunc
	sub    *notify.Subscription

	mu         sync.Mutex
	phase      Phase
	index      int
	generation uint64
	speaking   bool
	voice      string
	stopTimer  func() bool
	closed     bool
}

// NewSession creates a session in PhaseNotStarted. An empty question set is
// replaced by FallbackQuestions. The session listens for narration events on
// bus until Close.
func NewSession(questions []string, bus *notify.Bus, narrator Narrator, opts ...Option) *Session {
	qs := make([]string, 0, len(questions))
	for _, q := range questions {
		if q != "" {
			qs = append(qs, q)
		}
	}
	if len(qs) == 0 {
		qs = append(qs, FallbackQuestions...)
	}

	s := &Session{
		questions: qs,
		narrator:  narrator,
		settle:    DefaultSettleDelay,
		rate:      DefaultRate,
		log:       zerolog.Nop(),
		afterFunc: func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop },
		phase:     PhaseNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sub = bus.Subscribe(s.onNarration, notify.KindNarrationStarted, notify.KindNarrationEnded)
	return s
}

// Questions returns a copy of the question set.
func (s *Session) Questions() []string {
	out := make([]string, len(s.questions))
	copy(out, s.questions)
	return out
}

// SetVoice selects the voice used for subsequent utterances.
func (s *Session) SetVoice(name string) {
	s.mu.Lock()
	s.voice = name
	s.mu.Unlock()
}

// Begin narrates the first question and requests fullscreen focus.
// A focus refusal is logged and does not fail Begin.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed || s.phase == PhaseFinished:
		s.mu.Unlock()
		return ErrFinished
	case s.phase != PhaseNotStarted:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.phase = PhaseNarrating
	s.generation++
	u := s.utteranceLocked()
	s.mu.Unlock()

	if s.focus != nil {
		if err := s.focus.RequestFullscreen(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Fullscreen request denied")
		}
	}

	s.log.Info().Int("index", 0).Int("total", len(s.questions)).Msg("Interview started")
	s.speak(u)
	return nil
}

// Advance submits the current answer. While the question is still being
// narrated it returns ErrNarrating and nothing changes. After the last
// question it finishes the interview and hands off the violation count.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrFinished
	}
	switch s.phase {
	case PhaseNotStarted:
		s.mu.Unlock()
		return ErrNotStarted
	case PhaseNarrating:
		s.mu.Unlock()
		return ErrNarrating
	case PhaseFinished:
		s.mu.Unlock()
		return ErrFinished
	}

	if s.index < len(s.questions)-1 {
		s.index++
		s.phase = PhaseNarrating
		s.generation++
		token := s.generation
		s.stopTimer = s.afterFunc(s.settle, func() { s.speakScheduled(token) })
		index := s.index
		s.mu.Unlock()

		s.log.Debug().Int("index", index).Dur("settle", s.settle).Msg("Next question scheduled")
		return nil
	}

	s.phase = PhaseFinished
	s.generation++
	s.mu.Unlock()

	final := 0
	if s.violations != nil {
		final = s.violations.ViolationCount()
	}
	s.log.Info().Int("violations", final).Msg("Interview finished")
	if s.handoff != nil {
		s.handoff.HandOff(ctx, final)
	}
	return nil
}

// State returns the current view of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:    s.phase,
		Index:    s.index,
		Total:    len(s.questions),
		Question: s.questions[s.index],
		Locked:   s.phase == PhaseNarrating,
		Speaking: s.speaking,
	}
}

// Close cancels any scheduled narration and stops listening for narration
// events. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.mu.Unlock()

	s.sub.Cancel()
	s.cancel()
}

func (s *Session) onNarration(ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Token != s.generation || s.phase != PhaseNarrating {
		s.log.Debug().
			Str("kind", string(ev.Kind)).
			Uint64("token", ev.Token).
			Uint64("current", s.generation).
			Msg("Ignoring stale narration event")
		return
	}

	switch ev.Kind {
	case notify.KindNarrationStarted:
		s.speaking = true
	case notify.KindNarrationEnded:
		s.speaking = false
		s.phase = PhaseAwaitingAnswer
	}
}

// speakScheduled runs when the settle delay elapses. It is dropped if the
// session moved on or closed in the meantime.
func (s *Session) speakScheduled(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.generation || s.phase != PhaseNarrating {
		s.mu.Unlock()
		return
	}
	s.stopTimer = nil
	u := s.utteranceLocked()
	s.mu.Unlock()

	s.speak(u)
}

func (s *Session) utteranceLocked() Utterance {
	return Utterance{
		Text:  s.questions[s.index],
		Rate:  s.rate,
		Voice: s.voice,
		Token: s.generation,
	}
}

func (s *Session) speak(u Utterance) {
	if err := s.narrator.Speak(s.ctx, u); err != nil {
		s.log.Error().Err(err).Uint64("token", u.Token).Msg("Narration failed")
	}
}
