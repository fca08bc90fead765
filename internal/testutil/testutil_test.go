package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"kvbench/internal/target"
	"kvbench/internal/workload"
)

func TestClock(t *testing.T) {
	clock := NewClock()
	start := clock.Now()

	clock.Advance(1500 * time.Millisecond)
	if got := clock.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s elapsed, got %v", got)
	}
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected test config to be valid, got %v", err)
	}
	if !cfg.Target.InMemory {
		t.Error("Expected test config to use in-memory storage")
	}
	if cfg.Workload.Seed == 0 {
		t.Error("Expected test config to be deterministic")
	}
}

func TestTestLogger(t *testing.T) {
	logger := TestLogger()
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	logger.InfoContext(context.Background(), "test message")
}

func TestPopulateRecords(t *testing.T) {
	exec := TestExecutor(t)
	PopulateRecords(t, exec, 5)

	ctx := context.Background()
	if err := exec.Execute(ctx, target.Operation{Kind: workload.OpRead, Key: workload.KeyName(4)}); err != nil {
		t.Errorf("Expected record 4 to exist: %v", err)
	}
	err := exec.Execute(ctx, target.Operation{Kind: workload.OpRead, Key: workload.KeyName(5)})
	if !errors.Is(err, target.ErrNotFound) {
		t.Errorf("Expected record 5 to be missing, got %v", err)
	}
}

func TestTestRedisExecutor(t *testing.T) {
	exec, srv := TestRedisExecutor(t)
	PopulateRecords(t, exec, 3)

	if !srv.Exists(workload.KeyName(2)) {
		t.Error("Expected record to be written to miniredis")
	}
}

func TestWaitForCondition(t *testing.T) {
	calls := 0
	WaitForCondition(t, func() bool {
		calls++
		return calls >= 3
	}, time.Second, time.Millisecond)

	if calls != 3 {
		t.Errorf("Expected 3 checks, got %d", calls)
	}
}
