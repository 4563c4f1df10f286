package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/metrics"
)

const (
	popTimeout   = 5 * time.Second
	retryBackoff = 5 * time.Second
)

// RedisQueue pushes jobs onto a Redis list and consumes them with BRPOP,
// handing each one to a Pool.
type RedisQueue struct {
	rdb     *redis.Client
	key     string
	pool    *Pool
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRedisQueue - key 리스트를 큐로 사용
func NewRedisQueue(rdb *redis.Client, key string, pool *Pool, log *zap.Logger, m *metrics.Metrics) *RedisQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisQueue{
		rdb:     rdb,
		key:     key,
		pool:    pool,
		log:     log.With(zap.String("queue", key)),
		metrics: m,
	}
}

// Submit LPUSHes the job.
func (q *RedisQueue) Submit(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	position, err := q.rdb.LPush(ctx, q.key, payload).Result()
	if err != nil {
		return fmt.Errorf("redis LPUSH failed: %w", err)
	}
	q.metrics.JobEnqueued(string(job.Kind))
	q.log.Info("Job enqueued", zap.String("job_id", job.JobID), zap.Int64("position", position))
	return nil
}

// Len - 대기 중인 job 수
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Start consumes the queue until ctx is done.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.log.Info("Watching queue")

	for {
		result, err := q.rdb.BRPop(ctx, popTimeout, q.key).Result()
		if err != nil {
			if ctx.Err() != nil {
				q.log.Info("Queue consumer stopped")
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			q.log.Error("Redis BRPOP error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
			continue
		}

		// result[0]은 key, result[1]이 payload
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.log.Error("Dropping undecodable job", zap.String("payload", result[1]), zap.Error(err))
			continue
		}
		q.log.Info("Received job", zap.String("job_id", job.JobID), zap.String("kind", string(job.Kind)))

		if err := q.pool.dispatch(job); err != nil {
			q.log.Error("Failed to dispatch job", zap.String("job_id", job.JobID), zap.Error(err))
			if errors.Is(err, ErrClosed) {
				return err
			}
		}
	}
}
