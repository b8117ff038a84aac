package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"clipper/internal/logging"
)

// RedisConfig configures the Redis list backend.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
	DialTimeout  time.Duration
}

// Redis is a queue stored in a Redis list: LPUSH to enqueue, BRPOP to dequeue.
type Redis struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
	closed       atomic.Bool
}

// NewRedis connects to Redis and verifies the server is reachable.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = "clipper:jobs"
	}
	if cfg.BlockTimeout < time.Second {
		// BRPOP timeouts have one-second resolution.
		cfg.BlockTimeout = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Username:    strings.TrimSpace(cfg.Username),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logging.Info("Redis job queue connected: addr=%s key=%s", addr, key)
	return &Redis{client: client, key: key, blockTimeout: cfg.BlockTimeout}, nil
}

func (q *Redis) Push(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop waits for the next job. Descriptors that cannot be decoded are logged
// and discarded.
func (q *Redis) Pop(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		res, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if q.closed.Load() || errors.Is(err, redis.ErrClosed) {
				return Job{}, ErrClosed
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("pop job: %w", err)
		}
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			logging.Warn("Discarding malformed job descriptor from %s: %v", q.key, err)
			continue
		}
		return job, nil
	}
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *Redis) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.client.Close()
}
