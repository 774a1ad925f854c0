package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/proctor"
)

// snapshotSource is the subset of InterviewService a monitor snapshot reads.
type snapshotSource interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Interview, error)
	LiveState(ctx context.Context, id uuid.UUID) (map[string]string, error)
	Violations(ctx context.Context, id uuid.UUID) ([]model.Violation, error)
}

// MonitorService builds observer views of an interview.
type MonitorService struct {
	src snapshotSource
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(src snapshotSource) *MonitorService {
	return &MonitorService{src: src}
}

// MonitorSnapshot is the first event an observer receives.
type MonitorSnapshot struct {
	Interview      *model.Interview  `json:"interview"`
	Phase          string            `json:"phase"`
	Index          int               `json:"index"`
	Total          int               `json:"total"`
	IsInFullscreen bool              `json:"is_in_fullscreen"`
	ViolationCount int               `json:"violation_count"`
	IntegrityScore int               `json:"integrity_score"`
	Violations     []model.Violation `json:"violations"`
}

// Snapshot fetches the interview, its live Redis state and its persisted
// violations concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, id uuid.UUID) (*MonitorSnapshot, error) {
	var (
		iv         *model.Interview
		live       map[string]string
		violations []model.Violation
		ivErr      error
		liveErr    error
		violErr    error
		wg         sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		iv, ivErr = s.src.Get(ctx, id)
	}()
	go func() {
		defer wg.Done()
		live, liveErr = s.src.LiveState(ctx, id)
	}()
	go func() {
		defer wg.Done()
		violations, violErr = s.src.Violations(ctx, id)
	}()
	wg.Wait()

	// The interview row is critical; live state and violations are best-effort
	if ivErr != nil {
		return nil, ivErr
	}
	if liveErr != nil {
		live = nil
	}
	if violErr != nil || violations == nil {
		violations = []model.Violation{}
	}

	return BuildSnapshot(iv, live, violations), nil
}

// BuildSnapshot merges the three sources. The live count can run ahead of
// the persisted log while the violation worker has a batch in flight.
func BuildSnapshot(iv *model.Interview, live map[string]string, violations []model.Violation) *MonitorSnapshot {
	snap := &MonitorSnapshot{
		Interview:      iv,
		Phase:          string(iv.Status),
		Total:          len(iv.Questions),
		IsInFullscreen: true,
		ViolationCount: max(iv.ViolationCount, len(violations)),
		Violations:     violations,
	}

	if phase := live["phase"]; phase != "" {
		snap.Phase = phase
	}
	if n, err := strconv.Atoi(live["index"]); err == nil {
		snap.Index = n
	}
	if n, err := strconv.Atoi(live["violation_count"]); err == nil && n > snap.ViolationCount {
		snap.ViolationCount = n
	}
	if v, ok := live["is_in_fullscreen"]; ok {
		snap.IsInFullscreen = v == "1" || v == "true"
	}

	snap.IntegrityScore = proctor.IntegrityScore(snap.ViolationCount)
	return snap
}
