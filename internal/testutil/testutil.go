package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis"

	"kvbench/internal/config"
	"kvbench/internal/logging"
	"kvbench/internal/target"
	"kvbench/internal/workload"
)

// Clock is a manually advanced clock for code that accepts a
// func() time.Time
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant
func NewClock() *Clock {
	return NewClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

// NewClockAt starts a clock at t
func NewClockAt(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current manual time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestConfig creates a small, fast, valid configuration against an in-memory
// badger target
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Workload.RecordCount = 200
	cfg.Workload.OperationCount = 2000
	cfg.Workload.Threads = 4
	cfg.Workload.ValueSize = 32
	cfg.Workload.ScanLength = 10
	cfg.Workload.Seed = 42
	cfg.Target.Driver = target.DriverBadger
	cfg.Target.InMemory = true
	cfg.Logging = logging.TestLoggingConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.ListenAddress = "127.0.0.1:0"
	return cfg
}

// TestLogger creates a test logger with minimal configuration
func TestLogger() *logging.Logger {
	testLogConfig := logging.TestLoggingConfig()
	return logging.NewLogger(&testLogConfig)
}

// TestExecutor creates an in-memory badger executor closed at test end
func TestExecutor(t *testing.T) *target.BadgerExecutor {
	t.Helper()

	exec, err := target.NewBadgerExecutor(target.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create test executor: %v", err)
	}

	t.Cleanup(func() {
		exec.Close()
	})

	return exec
}

// TestRedisExecutor starts an in-process redis server and connects to it
func TestRedisExecutor(t *testing.T) (*target.RedisExecutor, *miniredis.Miniredis) {
	t.Helper()

	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(srv.Close)

	exec, err := target.NewRedisExecutor(target.RedisConfig{Address: srv.Addr(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		exec.Close()
	})

	return exec, srv
}

// PopulateRecords inserts records 0..count-1 using the benchmark key format
func PopulateRecords(t *testing.T, exec target.Executor, count int) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < count; i++ {
		err := exec.Execute(ctx, target.Operation{
			Kind:  workload.OpInsert,
			Key:   workload.KeyName(uint64(i)),
			Value: []byte(fmt.Sprintf("value-%d", i)),
		})
		if err != nil {
			t.Fatalf("Failed to populate record %d: %v", i, err)
		}
	}
}

// WaitForCondition waits for a condition to become true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, checkInterval time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(checkInterval)
	}

	t.Fatalf("Condition not met within timeout %v", timeout)
}
