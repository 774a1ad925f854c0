package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshotSource struct {
	iv         *model.Interview
	ivErr      error
	live       map[string]string
	liveErr    error
	violations []model.Violation
	violErr    error
}

func (s *stubSnapshotSource) Get(context.Context, uuid.UUID) (*model.Interview, error) {
	return s.iv, s.ivErr
}

func (s *stubSnapshotSource) LiveState(context.Context, uuid.UUID) (map[string]string, error) {
	return s.live, s.liveErr
}

func (s *stubSnapshotSource) Violations(context.Context, uuid.UUID) ([]model.Violation, error) {
	return s.violations, s.violErr
}

func newSnapshotInterview() *model.Interview {
	return &model.Interview{
		ID:        uuid.New(),
		Role:      "Backend Engineer",
		Questions: []string{"a", "b", "c"},
		Status:    model.InterviewStatusInProgress,
	}
}

func TestBuildSnapshotWithoutLiveState(t *testing.T) {
	iv := newSnapshotInterview()
	snap := BuildSnapshot(iv, nil, []model.Violation{{Reason: "TAB_SWITCH"}})

	assert.Equal(t, "IN_PROGRESS", snap.Phase)
	assert.Equal(t, 3, snap.Total)
	assert.True(t, snap.IsInFullscreen)
	assert.Equal(t, 1, snap.ViolationCount)
	assert.Equal(t, 85, snap.IntegrityScore)
}

func TestBuildSnapshotPrefersLiveState(t *testing.T) {
	iv := newSnapshotInterview()
	snap := BuildSnapshot(iv, map[string]string{
		"phase":            "AWAITING_ANSWER",
		"index":            "2",
		"violation_count":  "3",
		"is_in_fullscreen": "0",
	}, []model.Violation{{Reason: "TAB_SWITCH"}})

	assert.Equal(t, "AWAITING_ANSWER", snap.Phase)
	assert.Equal(t, 2, snap.Index)
	assert.False(t, snap.IsInFullscreen)
	assert.Equal(t, 3, snap.ViolationCount)
	assert.Equal(t, 55, snap.IntegrityScore)
}

func TestBuildSnapshotIgnoresGarbage(t *testing.T) {
	iv := newSnapshotInterview()
	iv.ViolationCount = 2
	snap := BuildSnapshot(iv, map[string]string{
		"index":            "x",
		"violation_count":  "lots",
		"is_in_fullscreen": "true",
	}, nil)

	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, 2, snap.ViolationCount)
	assert.True(t, snap.IsInFullscreen)
}

func TestSnapshotBestEffortSources(t *testing.T) {
	src := &stubSnapshotSource{
		iv:      newSnapshotInterview(),
		liveErr: errors.New("redis down"),
		violErr: errors.New("pg down"),
	}
	snap, err := NewMonitorService(src).Snapshot(context.Background(), src.iv.ID)

	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", snap.Phase)
	assert.NotNil(t, snap.Violations)
	assert.Empty(t, snap.Violations)
}

func TestSnapshotInterviewRequired(t *testing.T) {
	src := &stubSnapshotSource{ivErr: ErrInterviewNotFound}
	_, err := NewMonitorService(src).Snapshot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInterviewNotFound)
}
