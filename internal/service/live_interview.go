package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/notify"
	"github.com/mockai/mockai-backend/internal/proctor"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/telemetry"
	ws "github.com/mockai/mockai-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// ErrUnknownAction is returned by Dispatch for actions it does not handle.
var ErrUnknownAction = errors.New("unknown action")

// Client delivers events to the candidate's browser. Send must be safe for
// concurrent use.
type Client interface {
	Send(v any) error
}

// LiveRecorder receives the side effects of a live interview.
// InterviewService is the production implementation.
type LiveRecorder interface {
	MarkStarted(ctx context.Context, id uuid.UUID)
	RecordViolation(ctx context.Context, id uuid.UUID, v proctor.ViolationEvent, st proctor.State)
	PublishState(ctx context.Context, id uuid.UUID, sess interview.State, st proctor.State)
	Complete(ctx context.Context, id uuid.UUID, violations int) *model.InterviewResult
}

// LiveConfig tunes the per-connection runtime.
type LiveConfig struct {
	SettleDelay time.Duration
	Rate        float64
	Voice       interview.VoicePreference
}

// LiveInterview is the server side of one open interview: a notification
// bus, the proctoring monitor and the question session, driven by actions
// from a single client connection.
type LiveInterview struct {
	id       uuid.UUID
	bus      *notify.Bus
	monitor  *proctor.Monitor
	session  *interview.Session
	client   Client
	recorder LiveRecorder
	metrics  *telemetry.Metrics
	voice    interview.VoicePreference
	log      zerolog.Logger

	// ctx outlives the connection so the final hand-off still reaches Redis
	// when the client disconnects mid-write.
	ctx       context.Context
	closed    func()
	closeOnce sync.Once
}

// NewLiveInterview wires a monitor and session for iv and starts the
// monitor. history seeds violations persisted by an earlier connection.
func NewLiveInterview(
	ctx context.Context,
	iv *model.Interview,
	history []proctor.ViolationEvent,
	client Client,
	recorder LiveRecorder,
	metrics *telemetry.Metrics,
	cfg LiveConfig,
	log zerolog.Logger,
	sessionOpts ...interview.Option,
) *LiveInterview {
	l := &LiveInterview{
		id:       iv.ID,
		bus:      notify.NewBus(),
		client:   client,
		recorder: recorder,
		metrics:  metrics,
		voice:    cfg.Voice,
		log:      log.With().Str("component", "live_interview").Str("interview_id", iv.ID.String()).Logger(),
		ctx:      context.WithoutCancel(ctx),
	}
	l.closed = metrics.SessionOpened(l.ctx)

	l.monitor = proctor.NewMonitor(l.bus, l.log,
		proctor.WithHost(clientHost{client}),
		proctor.WithViolationHook(l.onViolation),
		proctor.WithHistory(history),
	)

	opts := []interview.Option{
		interview.WithFocus(l.monitor),
		interview.WithViolations(l.monitor),
		interview.WithHandoff(interview.HandoffFunc(l.handoff)),
		interview.WithLogger(l.log),
	}
	if cfg.SettleDelay > 0 {
		opts = append(opts, interview.WithSettleDelay(cfg.SettleDelay))
	}
	if cfg.Rate > 0 {
		opts = append(opts, interview.WithRate(cfg.Rate))
	}
	l.session = interview.NewSession(iv.Questions, l.bus, clientNarrator{client}, append(opts, sessionOpts...)...)

	l.monitor.Start()
	return l
}

// Dispatch applies one client action. Rejected transitions are answered on
// the client directly; the returned error is for the caller to report.
func (l *LiveInterview) Dispatch(ctx context.Context, msg ws.RequestPayload) error {
	switch msg.Action {
	case ws.ActionVoices:
		voice := interview.SelectVoice(msg.Voices, l.voice)
		l.session.SetVoice(voice)
		l.log.Debug().Str("voice", voice).Int("available", len(msg.Voices)).Msg("Voice selected")
		return nil

	case ws.ActionBegin:
		if err := l.session.Begin(ctx); err != nil {
			return err
		}
		l.recorder.MarkStarted(l.ctx, l.id)
		l.sendState()
		return nil

	case ws.ActionAdvance:
		err := l.session.Advance(ctx)
		if errors.Is(err, interview.ErrNarrating) {
			return l.client.Send(ws.LockedResponse{
				Event:   ws.EventLocked,
				Code:    string(response.ErrNarrationInProgress),
				Message: response.GetMessage(response.ErrNarrationInProgress),
			})
		}
		if err != nil {
			return err
		}
		if l.session.State().Phase != interview.PhaseFinished {
			l.sendState()
		}
		return nil

	case ws.ActionVisibility:
		if msg.Visible == nil {
			return fmt.Errorf("%w: visibility requires visible", ws.ErrInvalidPayload)
		}
		l.bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: *msg.Visible})
		l.sendState()
		return nil

	case ws.ActionFullscreen:
		if msg.Active == nil {
			return fmt.Errorf("%w: fullscreen requires active", ws.ErrInvalidPayload)
		}
		l.bus.Publish(notify.Event{Kind: notify.KindFullscreen, Active: *msg.Active})
		l.sendState()
		return nil

	case ws.ActionFullscreenDenied:
		l.bus.Publish(notify.Event{Kind: notify.KindFullscreenDenied, Detail: msg.Reason})
		l.metrics.FullscreenDenied(l.ctx)
		return l.client.Send(ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrFullscreenDenied),
			Error: response.GetMessage(response.ErrFullscreenDenied),
		})

	case ws.ActionRetryFullscreen:
		return l.monitor.RequestFullscreen(ctx)

	case ws.ActionNarrationStarted:
		l.bus.Publish(notify.Event{Kind: notify.KindNarrationStarted, Token: msg.Token})
		return nil

	case ws.ActionNarrationEnded:
		l.bus.Publish(notify.Event{Kind: notify.KindNarrationEnded, Token: msg.Token})
		l.sendState()
		return nil

	case ws.ActionPing:
		return l.client.Send(ws.PongResponse{Event: ws.EventPong})
	}

	return fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
}

// SendState pushes the current state to the client.
func (l *LiveInterview) SendState() { l.sendState() }

// State returns the session and monitor snapshots.
func (l *LiveInterview) State() (interview.State, proctor.State) {
	return l.session.State(), l.monitor.State()
}

// Close cancels pending narration and stops proctoring. It is idempotent.
func (l *LiveInterview) Close() {
	l.closeOnce.Do(func() {
		l.session.Close()
		l.monitor.Stop()
		l.closed()
	})
}

func (l *LiveInterview) sendState() {
	sess, proc := l.State()
	l.recorder.PublishState(l.ctx, l.id, sess, proc)
	l.send(ws.StateResponse{
		Event:   ws.EventState,
		Session: sess,
		Proctor: ws.SummarizeProctor(proc),
	})
}

func (l *LiveInterview) onViolation(v proctor.ViolationEvent, st proctor.State) {
	l.recorder.RecordViolation(l.ctx, l.id, v, st)
	l.send(ws.ViolationResponse{
		Event:     ws.EventViolation,
		Violation: v,
		Proctor:   ws.SummarizeProctor(st),
	})
}

// handoff stops proctoring, then passes the final count on.
func (l *LiveInterview) handoff(_ context.Context, violations int) {
	l.monitor.Stop()
	res := l.recorder.Complete(l.ctx, l.id, violations)
	l.send(ws.FinishedResponse{
		Event:          ws.EventFinished,
		InterviewID:    l.id.String(),
		ViolationCount: res.ViolationCount,
		IntegrityScore: res.IntegrityScore,
	})
}

func (l *LiveInterview) send(v any) {
	if err := l.client.Send(v); err != nil {
		l.log.Debug().Err(err).Msg("Client write failed")
	}
}

// clientNarrator asks the browser to speak. Completion comes back as
// narration_ended carrying the same token.
type clientNarrator struct{ c Client }

func (n clientNarrator) Speak(_ context.Context, u interview.Utterance) error {
	return n.c.Send(ws.NarrateResponse{Event: ws.EventNarrate, Utterance: u})
}

// clientHost asks the browser to enter fullscreen. A refusal arrives later
// as fullscreen_denied.
type clientHost struct{ c Client }

func (h clientHost) RequestFullscreen(context.Context) error {
	return h.c.Send(ws.RequestFullscreenResponse{Event: ws.EventRequestFullscreen})
}
