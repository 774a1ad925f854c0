// Package questions produces the three interview questions for a role,
// falling back to fixed lists whenever the remote generator cannot be used.
package questions

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockai/mockai-backend/internal/telemetry"
)

// Count is the number of questions a generation yields.
const Count = 3

// DefaultTimeout bounds the single remote attempt.
const DefaultTimeout = 30 * time.Second

// ErrNoCredential is returned by a Completer that has no API key configured.
var ErrNoCredential = errors.New("question generator credential not configured")

// Origin records where a question set came from.
type Origin string

const (
	OriginGenerated     Origin = "generated"
	OriginNoCredential  Origin = "no_credential"
	OriginRemoteFailure Origin = "remote_failure"
	OriginMalformed     Origin = "malformed"
)

// Completer sends a prompt to a text generation model and returns its raw
// reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Set is the outcome of one generation.
type Set struct {
	Questions []string `json:"questions"`
	Origin    Origin   `json:"origin"`
}

// Fallback reports whether the set was substituted.
func (s Set) Fallback() bool { return s.Origin != OriginGenerated }

// Option configures a Source.
type Option func(*Source)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option { return func(s *Source) { s.timeout = d } }

// WithMetrics records fallbacks on m.
func WithMetrics(m *telemetry.Metrics) Option { return func(s *Source) { s.metrics = m } }

// Source generates question sets. It never fails: every error path ends in
// one of the fallback lists.
type Source struct {
	completer Completer
	timeout   time.Duration
	metrics   *telemetry.Metrics
	log       zerolog.Logger
}

// NewSource creates a Source. A nil completer means no credential is
// configured and every call returns the no-credential list.
func NewSource(completer Completer, log zerolog.Logger, opts ...Option) *Source {
	s := &Source{
		completer: completer,
		timeout:   DefaultTimeout,
		log:       log.With().Str("component", "question_source").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate makes a single attempt at generating questions for role.
func (s *Source) Generate(ctx context.Context, role, resume string) Set {
	if s.completer == nil {
		return s.fallback(ctx, OriginNoCredential, role, nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.completer.Complete(callCtx, BuildPrompt(role, resume))
	if errors.Is(err, ErrNoCredential) {
		return s.fallback(ctx, OriginNoCredential, role, err)
	}
	if err != nil {
		return s.fallback(ctx, OriginRemoteFailure, role, err)
	}

	qs, err := Parse(reply)
	if err != nil {
		return s.fallback(ctx, OriginMalformed, role, err)
	}

	s.log.Info().Str("role", role).Dur("took", time.Since(start)).Msg("Questions generated")
	return Set{Questions: qs, Origin: OriginGenerated}
}

func (s *Source) fallback(ctx context.Context, origin Origin, role string, cause error) Set {
	ev := s.log.Warn().Str("role", role).Str("origin", string(origin))
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Using fallback questions")
	s.metrics.Fallback(ctx, string(origin))

	return Set{Questions: FallbackFor(origin, role), Origin: origin}
}
