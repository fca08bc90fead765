// Package target executes benchmark operations against the system under
// test: an embedded badger store, a redis server or a gRPC key-value service.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kvbench/internal/config"
	"kvbench/internal/workload"
)

var (
	// ErrNotFound is returned when a read finds no record. The runner counts
	// it as a failed operation like any other error.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedDriver is returned by New for an unknown driver name
	ErrUnsupportedDriver = errors.New("unsupported target driver")
	// ErrUnsupportedOperation is returned for an operation kind an executor
	// cannot perform
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Operation is one request against the target. Scan reads up to
// len(ScanKeys) records starting at Key; ScanKeys lists those records for
// drivers without ordered iteration.
type Operation struct {
	Kind     workload.OperationKind
	Key      string
	Value    []byte
	ScanKeys []string
}

// Executor performs operations. Implementations are safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, op Operation) error
	Close() error
}

// BatchInserter is implemented by executors that can write many records in
// one round trip. The load phase prefers it.
type BatchInserter interface {
	InsertBatch(ctx context.Context, ops []Operation) error
}

// Driver names
const (
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverGRPC   = "grpc"
)

// New builds the executor configured by cfg
func New(cfg config.TargetConfig) (Executor, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverBadger:
		return NewBadgerExecutor(BadgerConfig{
			DataPath:   cfg.DataPath,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
		})
	case DriverRedis:
		return NewRedisExecutor(RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
			Timeout:  cfg.Timeout,
		})
	case DriverGRPC:
		return NewGRPCExecutor(GRPCConfig{
			Address: cfg.Address,
			Service: cfg.GRPCService,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// withTimeout bounds ctx by d when d is positive
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
