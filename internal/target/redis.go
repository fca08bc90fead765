package target

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"kvbench/internal/workload"
)

// RedisConfig configures the redis target
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisExecutor runs operations against a redis server. Scans fetch the
// listed keys with one MGET; read-modify-write is GET followed by SET.
type RedisExecutor struct {
	client  *redis.Client
	timeout time.Duration
}

var _ Executor = (*RedisExecutor)(nil)

// NewRedisExecutor connects and pings the server
func NewRedisExecutor(config RedisConfig) (*RedisExecutor, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := withTimeout(context.Background(), pingTimeout(config.Timeout))
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Address, err)
	}

	return &RedisExecutor{client: client, timeout: config.Timeout}, nil
}

func pingTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (e *RedisExecutor) Execute(ctx context.Context, op Operation) error {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	switch op.Kind {
	case workload.OpRead:
		return e.get(ctx, op.Key)
	case workload.OpInsert, workload.OpUpdate:
		return e.client.Set(ctx, op.Key, op.Value, 0).Err()
	case workload.OpDelete:
		return e.client.Del(ctx, op.Key).Err()
	case workload.OpScan:
		keys := op.ScanKeys
		if len(keys) == 0 {
			keys = []string{op.Key}
		}
		return e.client.MGet(ctx, keys...).Err()
	case workload.OpReadModifyWrite:
		if err := e.get(ctx, op.Key); err != nil {
			return err
		}
		return e.client.Set(ctx, op.Key, op.Value, 0).Err()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Kind)
	}
}

func (e *RedisExecutor) get(ctx context.Context, key string) error {
	err := e.client.Get(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

// InsertBatch writes records through one pipeline round trip
func (e *RedisExecutor) InsertBatch(ctx context.Context, ops []Operation) error {
	_, err := e.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			pipe.Set(ctx, op.Key, op.Value, 0)
		}
		return nil
	})
	return err
}

func (e *RedisExecutor) Close() error {
	return e.client.Close()
}
