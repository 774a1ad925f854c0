package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mockai/mockai-backend/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// InterviewRepository handles interview data access.
type InterviewRepository struct {
	pool *pgxpool.Pool
}

// NewInterviewRepository creates a new InterviewRepository.
func NewInterviewRepository(pool *pgxpool.Pool) *InterviewRepository {
	return &InterviewRepository{pool: pool}
}

// Create inserts a new interview and fills in its ID, status and creation time.
func (r *InterviewRepository) Create(ctx context.Context, iv *model.Interview) error {
	questions, err := json.Marshal(iv.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	if iv.ID == uuid.Nil {
		iv.ID = uuid.New()
	}
	iv.Status = model.InterviewStatusCreated

	return r.pool.QueryRow(ctx,
		`INSERT INTO interviews (id, role, description, resume_text, questions, question_origin, status)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		 RETURNING created_at`,
		iv.ID, iv.Role, iv.Description, iv.ResumeText, questions, iv.QuestionOrigin, iv.Status,
	).Scan(&iv.CreatedAt)
}

// GetByID retrieves an interview.
func (r *InterviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Interview, error) {
	iv := &model.Interview{}
	var questions []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, role, description, resume_text, questions, question_origin, status,
		        violation_count, integrity_score, created_at, started_at, finished_at
		 FROM interviews
		 WHERE id = $1`, id,
	).Scan(&iv.ID, &iv.Role, &iv.Description, &iv.ResumeText, &questions, &iv.QuestionOrigin, &iv.Status,
		&iv.ViolationCount, &iv.IntegrityScore, &iv.CreatedAt, &iv.StartedAt, &iv.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &iv.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return iv, nil
}

// MarkStarted moves a CREATED interview to IN_PROGRESS. It is a no-op for
// interviews already started.
func (r *InterviewRepository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE interviews
		 SET status = $1, started_at = NOW()
		 WHERE id = $2 AND status = $3`,
		model.InterviewStatusInProgress, id, model.InterviewStatusCreated)
	return err
}

// Finish records the final violation count and score. Only the first call
// for an interview has an effect; it reports whether it did.
func (r *InterviewRepository) Finish(ctx context.Context, id uuid.UUID, violations, score int, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE interviews
		 SET status = $1, violation_count = $2, integrity_score = $3, finished_at = $4
		 WHERE id = $5 AND status <> $1`,
		model.InterviewStatusFinished, violations, score, at, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListViolations returns an interview's recorded violations, most recent first.
func (r *InterviewRepository) ListViolations(ctx context.Context, id uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, interview_id, reason, message, recorded_at
		 FROM interview_violations
		 WHERE interview_id = $1
		 ORDER BY recorded_at DESC, id DESC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	violations := make([]model.Violation, 0)
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.InterviewID, &v.Reason, &v.Message, &v.RecordedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
