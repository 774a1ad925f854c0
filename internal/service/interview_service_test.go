package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/proctor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeQuestions(t *testing.T) {
	t.Run("trims and keeps order", func(t *testing.T) {
		got := SanitizeQuestions([]string{"  one ", "two", "\tthree\n"})
		assert.Equal(t, []string{"one", "two", "three"}, got)
	})

	t.Run("blank entries can push below the minimum", func(t *testing.T) {
		got := SanitizeQuestions([]string{"one", "  ", "three"})
		assert.Equal(t, interview.FallbackQuestions, got)
	})

	t.Run("nil falls back", func(t *testing.T) {
		got := SanitizeQuestions(nil)
		assert.Equal(t, interview.FallbackQuestions, got)
	})

	t.Run("fallback is a copy", func(t *testing.T) {
		got := SanitizeQuestions(nil)
		got[0] = "mutated"
		assert.NotEqual(t, "mutated", interview.FallbackQuestions[0])
	})
}

func TestResultFromState(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)

	res, err := ResultFromState(id, map[string]string{
		"phase":                 string(interview.PhaseFinished),
		"violation_count":       "5",
		"final_violation_count": "2",
		"finished_at":           at.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, id, res.InterviewID)
	assert.Equal(t, 2, res.ViolationCount)
	assert.Equal(t, 70, res.IntegrityScore)
	assert.True(t, at.Equal(res.FinishedAt))
}

func TestResultFromStateNotFinished(t *testing.T) {
	_, err := ResultFromState(uuid.New(), map[string]string{"phase": string(interview.PhaseAwaitingAnswer)})
	assert.ErrorIs(t, err, ErrResultNotReady)

	_, err = ResultFromState(uuid.New(), nil)
	assert.ErrorIs(t, err, ErrResultNotReady)

	// Finished phase without a hand-off count.
	_, err = ResultFromState(uuid.New(), map[string]string{
		"phase":           string(interview.PhaseFinished),
		"violation_count": "1",
	})
	assert.ErrorIs(t, err, ErrResultNotReady)
}

func TestResultFromStateCorrupt(t *testing.T) {
	_, err := ResultFromState(uuid.New(), map[string]string{
		"phase":                 string(interview.PhaseFinished),
		"final_violation_count": "many",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrResultNotReady)
}

func TestViolationEvents(t *testing.T) {
	at := time.Now().UTC()
	got := ViolationEvents([]model.Violation{
		{Reason: "TAB_SWITCH", Message: "left the tab", RecordedAt: at},
		{Reason: "FULLSCREEN_EXIT", Message: "left fullscreen", RecordedAt: at.Add(time.Second)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, proctor.ReasonTabSwitch, got[0].Reason)
	assert.Equal(t, proctor.ReasonFullscreenExit, got[1].Reason)
	assert.Equal(t, "left fullscreen", got[1].Message)
	assert.True(t, at.Add(time.Second).Equal(got[1].At))

	assert.Empty(t, ViolationEvents(nil))
}

// ─── Redis-backed ───

func newRedisService(t *testing.T) (*InterviewService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &InterviewService{rdb: rdb, ttl: time.Hour, log: zerolog.Nop()}, mr
}

func TestCompleteResultIgnoresLaterViolations(t *testing.T) {
	svc, mr := newRedisService(t)
	ctx := context.Background()
	id := uuid.New()

	handed := svc.Complete(ctx, id, 1)
	require.Equal(t, 1, handed.ViolationCount)

	late := proctor.ViolationEvent{Reason: proctor.ReasonTabSwitch, Message: "left the tab", At: time.Now()}
	svc.RecordViolation(ctx, id, late, proctor.State{ViolationCount: 2})
	svc.RecordViolation(ctx, id, late, proctor.State{ViolationCount: 3})

	key := config.CacheKey.InterviewStateKey(id.String())
	assert.Equal(t, "3", mr.HGet(key, "violation_count"))

	res, err := svc.resultFromState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ViolationCount)
	assert.Equal(t, 85, res.IntegrityScore)
	assert.Equal(t, handed.IntegrityScore, res.IntegrityScore)

	queued, err := mr.List(config.WorkerKey.FinishInterviewsQueue)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestLiveLockRefreshChecksOwner(t *testing.T) {
	svc, mr := newRedisService(t)
	ctx := context.Background()
	id := uuid.New()
	key := config.CacheKey.InterviewLiveKey(id.String())

	first, err := svc.AcquireLive(ctx, id)
	require.NoError(t, err)
	require.NoError(t, first.Refresh(ctx))

	_, err = svc.AcquireLive(ctx, id)
	require.ErrorIs(t, err, ErrInterviewLive)

	mr.FastForward(liveLockTTL + time.Second)
	second, err := svc.AcquireLive(ctx, id)
	require.NoError(t, err)

	mr.FastForward(time.Minute)
	ttl := mr.TTL(key)

	assert.ErrorIs(t, first.Refresh(ctx), ErrLiveLockLost)
	assert.Equal(t, ttl, mr.TTL(key))

	require.NoError(t, first.Release(ctx))
	assert.True(t, mr.Exists(key))

	require.NoError(t, second.Refresh(ctx))
	assert.Equal(t, liveLockTTL, mr.TTL(key))

	require.NoError(t, second.Release(ctx))
	assert.False(t, mr.Exists(key))
}
