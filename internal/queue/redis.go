// Package queue carries newly accepted job ids from the intake API to the
// worker over a Redis list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty reports that no job id was available within the block timeout.
var ErrEmpty = errors.New("queue: empty")

// Redis is a minimal list-backed queue: RPush on intake, BLPop in the worker.
type Redis struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewRedis wires a queue on the given list key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key, blockTimeout: 5 * time.Second}
}

// Enqueue appends a job id to the list.
func (q *Redis) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to the queue's block timeout for a job id. ErrEmpty is
// the normal idle outcome, not a failure.
func (q *Redis) Dequeue(ctx context.Context) (string, error) {
	result, err := q.client.BLPop(ctx, q.blockTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("queue: dequeue: %w", err)
	}
	// BLPop returns [key, value].
	return result[1], nil
}
