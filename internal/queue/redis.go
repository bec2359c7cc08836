package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

// RedisQueue is a simple list-backed queue: LPUSH to enqueue, BRPOP to
// dequeue, so ids are delivered in arrival order.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

func NewRedisQueue(cfg *config.Settings, baseLog *logger.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisQueue{
		client: client,
		key:    cfg.QueueName,
		log:    baseLog.With("component", "RedisQueue"),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, ingestionID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, ingestionID.String()).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("brpop %s: %w", q.key, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return uuid.Nil, false, fmt.Errorf("brpop %s: unexpected reply %v", q.key, res)
	}
	id, err := uuid.Parse(res[1])
	if err != nil {
		q.log.Warn("dropping malformed queue entry", "value", res[1])
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
