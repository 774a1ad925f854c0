package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/model"
	"github.com/mockai/mockai-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const finishBatchSize = 50

// ResultWorker writes finished interviews from the hand-off queue to PostgreSQL.
type ResultWorker struct {
	pool     *pgxpool.Pool
	repo     *repository.InterviewRepository
	consumer *queueConsumer[model.FinishMessage]
	log      zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, repo *repository.InterviewRepository, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{
		pool: pool,
		repo: repo,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
	w.consumer = &queueConsumer[model.FinishMessage]{
		rdb:   rdb,
		queue: config.WorkerKey.FinishInterviewsQueue,
		size:  finishBatchSize,
		flush: w.flushSafe,
		log:   w.log,
	}
	return w
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")
	w.consumer.run(ctx)
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []model.FinishMessage) {
	cols, err := finishColumns(batch)
	if err == nil {
		err = w.bulkFinish(ctx, cols)
		if err == nil {
			w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
			return
		}
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk result update failed, using fallback")

	var retry []model.FinishMessage
	for _, m := range batch {
		id, err := uuid.Parse(m.InterviewID)
		if err != nil {
			w.log.Error().Str("interview_id", m.InterviewID).Msg("Dropping result with invalid UUID")
			continue
		}
		if _, err := w.repo.Finish(ctx, id, m.ViolationCount, m.IntegrityScore, time.UnixMilli(m.FinishedAt).UTC()); err != nil {
			if isDataError(err) {
				w.log.Error().Err(err).Str("interview_id", m.InterviewID).Msg("Dropping result rejected by database")
				continue
			}
			w.log.Error().Err(err).Str("interview_id", m.InterviewID).Msg("Finish failed, requeueing")
			retry = append(retry, m)
		}
	}
	w.consumer.requeue(ctx, retry)
}

type finishCols struct {
	ids         []uuid.UUID
	violations  []int32
	scores      []int32
	finishedAts []time.Time
}

// finishColumns splits a batch into UNNEST arrays. A later message for the
// same interview wins; the update only touches unfinished rows anyway.
func finishColumns(batch []model.FinishMessage) (*finishCols, error) {
	idx := make(map[uuid.UUID]int, len(batch))
	cols := &finishCols{}
	for _, m := range batch {
		id, err := uuid.Parse(m.InterviewID)
		if err != nil {
			return nil, fmt.Errorf("interview_id %q: %w", m.InterviewID, err)
		}
		at := time.UnixMilli(m.FinishedAt).UTC()
		if i, ok := idx[id]; ok {
			cols.violations[i] = int32(m.ViolationCount)
			cols.scores[i] = int32(m.IntegrityScore)
			cols.finishedAts[i] = at
			continue
		}
		idx[id] = len(cols.ids)
		cols.ids = append(cols.ids, id)
		cols.violations = append(cols.violations, int32(m.ViolationCount))
		cols.scores = append(cols.scores, int32(m.IntegrityScore))
		cols.finishedAts = append(cols.finishedAts, at)
	}
	return cols, nil
}

func (w *ResultWorker) bulkFinish(ctx context.Context, c *finishCols) error {
	query := `
		UPDATE interviews AS i
		SET status = 'FINISHED',
		    violation_count = t.violation_count,
		    integrity_score = t.integrity_score,
		    finished_at = t.finished_at
		FROM (
			SELECT u.id, u.violation_count, u.integrity_score, u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::timestamptz[]
			) AS u (id, violation_count, integrity_score, finished_at)
		) AS t
		WHERE i.id = t.id
		  AND i.status <> 'FINISHED'
	`
	_, err := w.pool.Exec(ctx, query, c.ids, c.violations, c.scores, c.finishedAts)
	return err
}
