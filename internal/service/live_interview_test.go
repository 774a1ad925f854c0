package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/proctor"
	"github.com/mockai/mockai-backend/internal/response"
	ws "github.com/mockai/mockai-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []any
}

func (c *fakeClient) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeClient) last() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeClient) narrations() []interview.Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []interview.Utterance
	for _, v := range c.sent {
		if n, ok := v.(ws.NarrateResponse); ok {
			out = append(out, n.Utterance)
		}
	}
	return out
}

func (c *fakeClient) count(event ws.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.sent {
		switch r := v.(type) {
		case ws.StateResponse:
			if r.Event == event {
				n++
			}
		case ws.ViolationResponse:
			if r.Event == event {
				n++
			}
		case ws.RequestFullscreenResponse:
			if r.Event == event {
				n++
			}
		case ws.FinishedResponse:
			if r.Event == event {
				n++
			}
		}
	}
	return n
}

type fakeRecorder struct {
	started    int
	violations []proctor.ViolationEvent
	states     []interview.State
	completed  []int
}

func (r *fakeRecorder) MarkStarted(context.Context, uuid.UUID) { r.started++ }

func (r *fakeRecorder) RecordViolation(_ context.Context, _ uuid.UUID, v proctor.ViolationEvent, _ proctor.State) {
	r.violations = append(r.violations, v)
}

func (r *fakeRecorder) PublishState(_ context.Context, _ uuid.UUID, sess interview.State, _ proctor.State) {
	r.states = append(r.states, sess)
}

func (r *fakeRecorder) Complete(_ context.Context, id uuid.UUID, violations int) *model.InterviewResult {
	r.completed = append(r.completed, violations)
	return &model.InterviewResult{
		InterviewID:    id,
		ViolationCount: violations,
		IntegrityScore: proctor.IntegrityScore(violations),
	}
}

// pendingTimers holds scheduled narration until the test fires it. The
// session schedules under its lock, so firing inline would deadlock.
type pendingTimers struct {
	fns []func()
}

func (p *pendingTimers) afterFunc(_ time.Duration, f func()) func() bool {
	p.fns = append(p.fns, f)
	return func() bool { return true }
}

func (p *pendingTimers) fire() {
	fns := p.fns
	p.fns = nil
	for _, f := range fns {
		f()
	}
}

func flag(b bool) *bool { return &b }

type liveHarness struct {
	*LiveInterview
	client *fakeClient
	rec    *fakeRecorder
	timers *pendingTimers
}

func newLive(t *testing.T, questions []string, history []proctor.ViolationEvent) *liveHarness {
	t.Helper()
	h := &liveHarness{client: &fakeClient{}, rec: &fakeRecorder{}, timers: &pendingTimers{}}
	iv := &model.Interview{ID: uuid.New(), Questions: questions}

	h.LiveInterview = NewLiveInterview(context.Background(), iv, history, h.client, h.rec, nil,
		LiveConfig{Rate: 0.9, Voice: interview.DefaultVoicePreference},
		zerolog.Nop(), interview.WithAfterFunc(h.timers.afterFunc))
	t.Cleanup(h.Close)
	return h
}

func (h *liveHarness) dispatch(t *testing.T, msg ws.RequestPayload) {
	t.Helper()
	require.NoError(t, h.Dispatch(context.Background(), msg))
}

func (h *liveHarness) finishNarration(t *testing.T) {
	t.Helper()
	ns := h.client.narrations()
	require.NotEmpty(t, ns)
	token := ns[len(ns)-1].Token
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionNarrationStarted, Token: token})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionNarrationEnded, Token: token})
}

func TestLiveBeginNarratesAndRequestsFullscreen(t *testing.T) {
	h := newLive(t, []string{"Q1", "Q2"}, nil)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVoices, Voices: []string{"Alex", "Google UK English Female"}})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})

	assert.Equal(t, 1, h.rec.started)
	assert.Equal(t, 1, h.client.count(ws.EventRequestFullscreen))
	require.Len(t, h.client.narrations(), 1)
	u := h.client.narrations()[0]
	assert.Equal(t, "Q1", u.Text)
	assert.Equal(t, 0.9, u.Rate)
	assert.Equal(t, "Google UK English Female", u.Voice)

	sess, _ := h.State()
	assert.Equal(t, interview.PhaseNarrating, sess.Phase)
	assert.True(t, sess.Locked)

	err := h.Dispatch(context.Background(), ws.RequestPayload{Action: ws.ActionBegin})
	assert.ErrorIs(t, err, interview.ErrAlreadyStarted)
}

func TestLiveAdvanceWhileNarratingIsLocked(t *testing.T) {
	h := newLive(t, []string{"Q1", "Q2"}, nil)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionAdvance})

	locked, ok := h.client.last().(ws.LockedResponse)
	require.True(t, ok, "expected locked event, got %T", h.client.last())
	assert.Equal(t, string(response.ErrNarrationInProgress), locked.Code)

	sess, _ := h.State()
	assert.Equal(t, 0, sess.Index)
}

func TestLiveFullRunHandsOffOnce(t *testing.T) {
	h := newLive(t, []string{"Q1", "Q2"}, nil)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})
	h.finishNarration(t)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(false)})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(true)})

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionAdvance})
	require.Len(t, h.client.narrations(), 1, "next question waits for the settle delay")
	h.timers.fire()
	require.Len(t, h.client.narrations(), 2)
	assert.Equal(t, "Q2", h.client.narrations()[1].Text)
	h.finishNarration(t)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionAdvance})

	assert.Equal(t, []int{1}, h.rec.completed)
	fin, ok := h.client.last().(ws.FinishedResponse)
	require.True(t, ok, "expected finished event, got %T", h.client.last())
	assert.Equal(t, 1, fin.ViolationCount)
	assert.Equal(t, 85, fin.IntegrityScore)

	err := h.Dispatch(context.Background(), ws.RequestPayload{Action: ws.ActionAdvance})
	assert.ErrorIs(t, err, interview.ErrFinished)
	assert.Len(t, h.rec.completed, 1)
}

func TestLiveViolationsReachRecorderAndClient(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionFullscreen, Active: flag(false)})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionFullscreen, Active: flag(true)})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(false)})

	require.Len(t, h.rec.violations, 2)
	assert.Equal(t, proctor.ReasonFullscreenExit, h.rec.violations[0].Reason)
	assert.Equal(t, proctor.ReasonTabSwitch, h.rec.violations[1].Reason)
	assert.Equal(t, 2, h.client.count(ws.EventViolation))

	_, st := h.State()
	assert.Equal(t, 2, st.ViolationCount)
	assert.True(t, st.IsInFullscreen)
	assert.Equal(t, proctor.ReasonTabSwitch, st.Violations[0].Reason)
}

func TestLiveHistorySeedsViolations(t *testing.T) {
	history := []proctor.ViolationEvent{
		{Reason: proctor.ReasonTabSwitch, Message: "earlier", At: time.Now().Add(-time.Minute)},
	}
	h := newLive(t, []string{"Q1"}, history)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})
	h.finishNarration(t)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionAdvance})

	assert.Equal(t, []int{1}, h.rec.completed)
}

func TestLiveFullscreenDeniedIsRetryable(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionFullscreenDenied, Reason: "permission denied"})

	e, ok := h.client.last().(ws.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, string(response.ErrFullscreenDenied), e.Code)

	_, st := h.State()
	assert.Equal(t, 1, st.FullscreenDenials)
	assert.Zero(t, st.ViolationCount)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionRetryFullscreen})
	assert.Equal(t, 1, h.client.count(ws.EventRequestFullscreen))
}

func TestLiveStaleNarrationTokenIgnored(t *testing.T) {
	h := newLive(t, []string{"Q1", "Q2"}, nil)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionNarrationEnded, Token: 99})

	sess, _ := h.State()
	assert.Equal(t, interview.PhaseNarrating, sess.Phase)
}

func TestLiveUnknownActionAndPing(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)

	err := h.Dispatch(context.Background(), ws.RequestPayload{Action: "dance"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionPing})
	assert.Equal(t, ws.PongResponse{Event: ws.EventPong}, h.client.last())
}

func TestLiveCloseStopsProctoring(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)
	h.Close()
	h.Close()

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(false)})
	assert.Empty(t, h.rec.violations)

	err := h.Dispatch(context.Background(), ws.RequestPayload{Action: ws.ActionBegin})
	assert.ErrorIs(t, err, interview.ErrFinished)
}

func TestLiveViolationAfterFinishIsNotRecorded(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionBegin})
	h.finishNarration(t)
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(false)})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionAdvance})

	require.Equal(t, []int{1}, h.rec.completed)
	require.Len(t, h.rec.violations, 1)
	assert.False(t, h.monitor.Running())

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(false)})
	h.dispatch(t, ws.RequestPayload{Action: ws.ActionFullscreen, Active: flag(false)})

	assert.Len(t, h.rec.violations, 1)
	assert.Equal(t, 1, h.client.count(ws.EventViolation))
	assert.Equal(t, []int{1}, h.rec.completed)
	_, st := h.State()
	assert.Equal(t, 1, st.ViolationCount)
}

func TestLiveMissingFlagIsInvalidPayload(t *testing.T) {
	h := newLive(t, []string{"Q1"}, nil)

	var msg ws.RequestPayload
	require.NoError(t, json.Unmarshal([]byte(`{"action":"visibility"}`), &msg))
	require.Nil(t, msg.Visible)
	err := h.Dispatch(context.Background(), msg)
	assert.ErrorIs(t, err, ws.ErrInvalidPayload)

	err = h.Dispatch(context.Background(), ws.RequestPayload{Action: ws.ActionFullscreen})
	assert.ErrorIs(t, err, ws.ErrInvalidPayload)

	assert.Empty(t, h.rec.violations)
	_, st := h.State()
	assert.Zero(t, st.ViolationCount)

	h.dispatch(t, ws.RequestPayload{Action: ws.ActionVisibility, Visible: flag(true)})
	assert.Empty(t, h.rec.violations)
}
