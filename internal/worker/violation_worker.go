package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var violationColumns = []string{"interview_id", "reason", "message", "recorded_at"}

// ViolationWorker persists proctoring violations queued by live interviews.
type ViolationWorker struct {
	pool     *pgxpool.Pool
	consumer *queueConsumer[model.ViolationMessage]
	log      zerolog.Logger
}

// NewViolationWorker creates a worker that inserts up to batchSize rows at once.
func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, batchSize int, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{
		pool: pool,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
	w.consumer = &queueConsumer[model.ViolationMessage]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistViolationsQueue,
		size:  batchSize,
		flush: w.flushSafe,
		log:   w.log,
	}
	return w
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")
	w.consumer.run(ctx)
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationMessage) {
	rows, err := violationRows(batch)
	if err == nil {
		_, err = w.pool.CopyFrom(ctx, pgx.Identifier{"interview_violations"}, violationColumns, pgx.CopyFromRows(rows))
		if err == nil {
			w.log.Debug().Int("count", len(rows)).Msg("Violations persisted")
			return
		}
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var retry []model.ViolationMessage
	for _, m := range batch {
		row, err := violationRow(m)
		if err != nil {
			w.log.Error().Err(err).Str("interview_id", m.InterviewID).Msg("Dropping invalid violation")
			continue
		}
		_, err = w.pool.Exec(ctx,
			`INSERT INTO interview_violations (interview_id, reason, message, recorded_at)
			 VALUES ($1, $2, $3, $4)`, row...)
		if err == nil {
			continue
		}
		if isDataError(err) {
			w.log.Error().Err(err).Str("interview_id", m.InterviewID).Msg("Dropping violation rejected by database")
			continue
		}
		w.log.Error().Err(err).Str("interview_id", m.InterviewID).Msg("Insert failed, requeueing")
		retry = append(retry, m)
	}
	w.consumer.requeue(ctx, retry)
}

// violationRows converts a batch to CopyFrom rows. Any invalid item fails the
// whole batch so the row-by-row path can isolate it.
func violationRows(batch []model.ViolationMessage) ([][]any, error) {
	rows := make([][]any, 0, len(batch))
	for _, m := range batch {
		row, err := violationRow(m)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func violationRow(m model.ViolationMessage) ([]any, error) {
	id, err := uuid.Parse(m.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("interview_id %q: %w", m.InterviewID, err)
	}
	if m.Reason == "" {
		return nil, errors.New("empty reason")
	}
	return []any{id, m.Reason, m.Message, time.UnixMilli(m.Timestamp).UTC()}, nil
}

// isDataError reports errors a retry cannot fix: integrity constraint
// violations (class 23) and data exceptions (class 22).
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "22" || class == "23"
}
