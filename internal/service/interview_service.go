package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/proctor"
	"github.com/mockai/mockai-backend/internal/questions"
	"github.com/mockai/mockai-backend/internal/repository"
	"github.com/mockai/mockai-backend/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRole is used when the setup form leaves the role empty.
const DefaultRole = "Software Engineer"

// liveLockTTL bounds how long a crashed server can keep an interview locked.
// The WS handler refreshes the lock on every ping.
const liveLockTTL = 10 * time.Minute

// Domain Errors
var (
	ErrInterviewNotFound = errors.New("interview not found")
	ErrInterviewFinished = errors.New("interview already finished")
	ErrInterviewLive     = errors.New("interview already open on another connection")
	ErrResultNotReady    = errors.New("interview has not finished")
	ErrLiveLockLost      = errors.New("live lock expired or taken by another connection")
)

// releaseIfOwner deletes the live lock only while it still holds our token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshIfOwner extends the live lock only while it still holds our token.
var refreshIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// MonitorMessage is published on an interview's monitor channel.
type MonitorMessage struct {
	Type        string    `json:"type"`
	InterviewID string    `json:"interview_id"`
	At          time.Time `json:"at"`
	Data        any       `json:"data,omitempty"`
}

// InterviewService handles interview setup, caching and the live hand-off
// into Redis queues and pub/sub.
type InterviewService struct {
	repo    *repository.InterviewRepository
	rdb     *redis.Client
	source  *questions.Source
	auth    *AuthService
	metrics *telemetry.Metrics
	ttl     time.Duration
	log     zerolog.Logger
}

// NewInterviewService creates a new InterviewService.
func NewInterviewService(
	repo *repository.InterviewRepository,
	rdb *redis.Client,
	source *questions.Source,
	auth *AuthService,
	metrics *telemetry.Metrics,
	cfg *config.Config,
	log zerolog.Logger,
) *InterviewService {
	return &InterviewService{
		repo:    repo,
		rdb:     rdb,
		source:  source,
		auth:    auth,
		metrics: metrics,
		ttl:     cfg.InterviewTTL,
		log:     log.With().Str("component", "interview_service").Logger(),
	}
}

// Create generates the question set, persists the interview and issues its
// candidate and monitor tokens.
func (s *InterviewService) Create(ctx context.Context, req *model.CreateInterviewRequest) (*model.CreateInterviewResponse, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = DefaultRole
	}

	set := s.source.Generate(ctx, role, req.ResumeText)

	iv := &model.Interview{
		ID:             uuid.New(),
		Role:           role,
		Description:    req.Description,
		ResumeText:     req.ResumeText,
		Questions:      SanitizeQuestions(set.Questions),
		QuestionOrigin: string(set.Origin),
	}
	if err := s.repo.Create(ctx, iv); err != nil {
		return nil, fmt.Errorf("create interview: %w", err)
	}

	s.cache(ctx, iv)

	token, err := s.auth.GenerateToken(iv.ID, TokenTypeCandidate)
	if err != nil {
		return nil, err
	}
	monitorToken, err := s.auth.GenerateToken(iv.ID, TokenTypeObserver)
	if err != nil {
		return nil, err
	}

	s.metrics.InterviewCreated(ctx)
	s.log.Info().
		Str("interview_id", iv.ID.String()).
		Str("role", role).
		Str("origin", iv.QuestionOrigin).
		Msg("Interview created")

	return &model.CreateInterviewResponse{Interview: iv, Token: token, MonitorToken: monitorToken}, nil
}

// SanitizeQuestions trims the list and drops blanks. A list that ends up
// shorter than questions.Count is replaced by interview.FallbackQuestions.
func SanitizeQuestions(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) < questions.Count {
		return append([]string(nil), interview.FallbackQuestions...)
	}
	return out
}

// Get returns the interview from the Redis payload cache, falling back to
// PostgreSQL and re-caching on a miss.
func (s *InterviewService) Get(ctx context.Context, id uuid.UUID) (*model.Interview, error) {
	key := config.CacheKey.InterviewPayloadKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var iv model.Interview
		if jsonErr := json.Unmarshal(data, &iv); jsonErr == nil {
			return &iv, nil
		}
		s.log.Warn().Str("interview_id", id.String()).Msg("Corrupt interview payload in cache, reloading")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("interview_id", id.String()).Msg("Redis error reading interview payload")
	}

	iv, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInterviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}

	s.cache(ctx, iv)
	return iv, nil
}

func (s *InterviewService) cache(ctx context.Context, iv *model.Interview) {
	data, err := json.Marshal(iv)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.InterviewPayloadKey(iv.ID.String()), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("interview_id", iv.ID.String()).Msg("Failed to cache interview payload")
	}
}

func (s *InterviewService) uncache(ctx context.Context, id uuid.UUID) {
	_ = s.rdb.Del(ctx, config.CacheKey.InterviewPayloadKey(id.String())).Err()
}

// LiveLock marks an interview as open on one connection.
type LiveLock struct {
	rdb   *redis.Client
	key   string
	owner string
}

// Refresh extends the lock. It returns ErrLiveLockLost once the lock has
// expired or been claimed by another connection.
func (l *LiveLock) Refresh(ctx context.Context) error {
	n, err := refreshIfOwner.Run(ctx, l.rdb, []string{l.key}, l.owner, liveLockTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh live lock: %w", err)
	}
	if n == 0 {
		return ErrLiveLockLost
	}
	return nil
}

// Release frees the lock if this connection still owns it.
func (l *LiveLock) Release(ctx context.Context) error {
	return releaseIfOwner.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}

// AcquireLive claims the interview's live channel. Only one connection may
// drive an interview at a time.
func (s *InterviewService) AcquireLive(ctx context.Context, id uuid.UUID) (*LiveLock, error) {
	lock := &LiveLock{
		rdb:   s.rdb,
		key:   config.CacheKey.InterviewLiveKey(id.String()),
		owner: uuid.New().String(),
	}
	ok, err := s.rdb.SetNX(ctx, lock.key, lock.owner, liveLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire live lock: %w", err)
	}
	if !ok {
		return nil, ErrInterviewLive
	}
	return lock, nil
}

// MarkStarted records that the candidate began the interview.
func (s *InterviewService) MarkStarted(ctx context.Context, id uuid.UUID) {
	if err := s.repo.MarkStarted(ctx, id); err != nil {
		s.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to mark interview started")
		return
	}
	s.uncache(ctx, id)
	s.publish(ctx, id, "started", nil)
}

// RecordViolation queues v for persistence and fans it out to observers.
func (s *InterviewService) RecordViolation(ctx context.Context, id uuid.UUID, v proctor.ViolationEvent, st proctor.State) {
	s.metrics.Violation(ctx, string(v.Reason))

	payload, _ := json.Marshal(model.ViolationMessage{
		InterviewID: id.String(),
		Reason:      string(v.Reason),
		Message:     v.Message,
		Timestamp:   v.At.UnixMilli(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to queue violation")
	}

	s.storeProctorState(ctx, id, st)
	s.publish(ctx, id, "violation", map[string]any{
		"reason":          v.Reason,
		"message":         v.Message,
		"violation_count": st.ViolationCount,
		"integrity_score": proctor.IntegrityScore(st.ViolationCount),
	})
}

// PublishState mirrors the live state into Redis and notifies observers.
func (s *InterviewService) PublishState(ctx context.Context, id uuid.UUID, sess interview.State, st proctor.State) {
	key := config.CacheKey.InterviewStateKey(id.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"phase", string(sess.Phase),
		"index", sess.Index,
		"total", sess.Total,
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("interview_id", id.String()).Msg("Failed to store session state")
	}
	s.storeProctorState(ctx, id, st)

	s.publish(ctx, id, "state", map[string]any{
		"phase":            sess.Phase,
		"index":            sess.Index,
		"total":            sess.Total,
		"violation_count":  st.ViolationCount,
		"integrity_score":  proctor.IntegrityScore(st.ViolationCount),
		"is_in_fullscreen": st.IsInFullscreen,
	})
}

func (s *InterviewService) storeProctorState(ctx context.Context, id uuid.UUID, st proctor.State) {
	key := config.CacheKey.InterviewStateKey(id.String())
	err := s.rdb.HSet(ctx, key,
		"violation_count", st.ViolationCount,
		"integrity_score", proctor.IntegrityScore(st.ViolationCount),
		"is_in_fullscreen", st.IsInFullscreen,
		"fullscreen_denials", st.FullscreenDenials,
	).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("interview_id", id.String()).Msg("Failed to store proctor state")
	}
}

// Complete is the results hand-off: it receives the final violation count,
// records it in Redis and queues it for PostgreSQL. The final_* fields are
// written only here; storeProctorState keeps mirroring live counts.
func (s *InterviewService) Complete(ctx context.Context, id uuid.UUID, violations int) *model.InterviewResult {
	now := time.Now().UTC()
	score := proctor.IntegrityScore(violations)

	key := config.CacheKey.InterviewStateKey(id.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"phase", string(interview.PhaseFinished),
		"violation_count", violations,
		"integrity_score", score,
		"final_violation_count", violations,
		"final_integrity_score", score,
		"finished_at", now.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, s.ttl)
	payload, _ := json.Marshal(model.FinishMessage{
		InterviewID:    id.String(),
		ViolationCount: violations,
		IntegrityScore: score,
		FinishedAt:     now.UnixMilli(),
	})
	pipe.RPush(ctx, config.WorkerKey.FinishInterviewsQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("interview_id", id.String()).Msg("Failed to hand off interview result")
	}

	s.uncache(ctx, id)
	s.metrics.InterviewFinished(ctx, score)
	s.publish(ctx, id, "finished", map[string]any{
		"violation_count": violations,
		"integrity_score": score,
	})
	s.log.Info().
		Str("interview_id", id.String()).
		Int("violations", violations).
		Int("integrity_score", score).
		Msg("Interview finished")

	return &model.InterviewResult{
		InterviewID:    id,
		ViolationCount: violations,
		IntegrityScore: score,
		FinishedAt:     now,
	}
}

// Result returns the hand-off of a finished interview. PostgreSQL is
// authoritative; the Redis state covers the gap until the result worker
// has flushed.
func (s *InterviewService) Result(ctx context.Context, id uuid.UUID) (*model.InterviewResult, error) {
	iv, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInterviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}

	var res *model.InterviewResult
	if iv.Status == model.InterviewStatusFinished && iv.IntegrityScore != nil && iv.FinishedAt != nil {
		res = &model.InterviewResult{
			InterviewID:    id,
			ViolationCount: iv.ViolationCount,
			IntegrityScore: *iv.IntegrityScore,
			FinishedAt:     *iv.FinishedAt,
		}
	} else {
		res, err = s.resultFromState(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	res.Role = iv.Role

	violations, err := s.repo.ListViolations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	res.Violations = violations
	return res, nil
}

func (s *InterviewService) resultFromState(ctx context.Context, id uuid.UUID) (*model.InterviewResult, error) {
	state, err := s.rdb.HGetAll(ctx, config.CacheKey.InterviewStateKey(id.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get live state: %w", err)
	}
	return ResultFromState(id, state)
}

// ResultFromState decodes a finished interview from the hand-off fields of
// its Redis state hash.
func ResultFromState(id uuid.UUID, state map[string]string) (*model.InterviewResult, error) {
	if state["phase"] != string(interview.PhaseFinished) {
		return nil, ErrResultNotReady
	}
	raw, ok := state["final_violation_count"]
	if !ok {
		return nil, ErrResultNotReady
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid final_violation_count in state: %w", err)
	}
	finishedAt, err := time.Parse(time.RFC3339Nano, state["finished_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid finished_at in state: %w", err)
	}
	return &model.InterviewResult{
		InterviewID:    id,
		ViolationCount: count,
		IntegrityScore: proctor.IntegrityScore(count),
		FinishedAt:     finishedAt,
	}, nil
}

// EnsureOpen returns ErrInterviewFinished when iv has been handed off, either
// in PostgreSQL or in the Redis state the result worker has not flushed yet.
func (s *InterviewService) EnsureOpen(ctx context.Context, iv *model.Interview) error {
	if iv.Status == model.InterviewStatusFinished {
		return ErrInterviewFinished
	}
	phase, err := s.rdb.HGet(ctx, config.CacheKey.InterviewStateKey(iv.ID.String()), "phase").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get live phase: %w", err)
	}
	if phase == string(interview.PhaseFinished) {
		return ErrInterviewFinished
	}
	return nil
}

// History loads the violations of an interview that was already started on
// an earlier connection. Violations still queued for the worker are not
// included.
func (s *InterviewService) History(ctx context.Context, iv *model.Interview) []proctor.ViolationEvent {
	if iv.Status != model.InterviewStatusInProgress {
		return nil
	}
	vs, err := s.repo.ListViolations(ctx, iv.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("interview_id", iv.ID.String()).Msg("Failed to load violation history")
		return nil
	}
	return ViolationEvents(vs)
}

// ViolationEvents converts persisted rows to monitor events, keeping order.
func ViolationEvents(vs []model.Violation) []proctor.ViolationEvent {
	out := make([]proctor.ViolationEvent, 0, len(vs))
	for _, v := range vs {
		out = append(out, proctor.ViolationEvent{
			Reason:  proctor.Reason(v.Reason),
			Message: v.Message,
			At:      v.RecordedAt,
		})
	}
	return out
}

// LiveState returns the Redis mirror of a live interview.
func (s *InterviewService) LiveState(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, config.CacheKey.InterviewStateKey(id.String())).Result()
}

// Violations lists persisted violations.
func (s *InterviewService) Violations(ctx context.Context, id uuid.UUID) ([]model.Violation, error) {
	return s.repo.ListViolations(ctx, id)
}

func (s *InterviewService) publish(ctx context.Context, id uuid.UUID, kind string, data any) {
	msg, err := json.Marshal(MonitorMessage{
		Type:        kind,
		InterviewID: id.String(),
		At:          time.Now().UTC(),
		Data:        data,
	})
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.InterviewMonitorChannel(id.String()), msg).Err(); err != nil {
		s.log.Warn().Err(err).Str("interview_id", id.String()).Str("type", kind).Msg("Failed to publish monitor event")
	}
}

// Announce publishes a connection-level event (joined, left) for observers.
func (s *InterviewService) Announce(ctx context.Context, id uuid.UUID, kind string) {
	s.publish(ctx, id, kind, nil)
}
