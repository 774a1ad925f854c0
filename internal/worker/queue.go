package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize = 50
	BatchTimeout     = 2 * time.Second
	PollTimeout      = 1 * time.Second // Must be >= 1s to satisfy Redis
	shutdownTimeout  = 5 * time.Second
	redisBackoff     = 3 * time.Second
	requeueBackoff   = 2 * time.Second
)

// queueConsumer drains a Redis list into batches of T. flush is called when
// the batch is full, when BatchTimeout has passed since the last flush, and
// once more on shutdown.
type queueConsumer[T any] struct {
	rdb   *redis.Client
	queue string
	size  int
	flush func(ctx context.Context, batch []T)
	log   zerolog.Logger
}

func (q *queueConsumer[T]) run(ctx context.Context) {
	size := q.size
	if size <= 0 {
		size = DefaultBatchSize
	}
	buffer := make([]T, 0, size)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= size || time.Since(lastFlush) >= BatchTimeout) {
			q.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			q.shutdown(buffer)
			return
		default:
		}

		// BLPop returns immediately if data exists
		result, err := q.rdb.BLPop(ctx, PollTimeout, q.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			q.log.Error().Err(err).Msg("Redis connection error, sleeping")
			sleep(ctx, redisBackoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON can never succeed; drop it
			q.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (q *queueConsumer[T]) shutdown(buffer []T) {
	q.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	q.flush(ctx, buffer)
}

// requeue pushes failed items back for a later batch.
func (q *queueConsumer[T]) requeue(ctx context.Context, items []T) {
	if len(items) == 0 {
		return
	}
	pipe := q.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, q.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	q.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down
	sleep(ctx, requeueBackoff)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
