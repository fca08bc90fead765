package target

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"kvbench/internal/config"
	"kvbench/internal/workload"
)

func newBadger(t *testing.T) *BadgerExecutor {
	t.Helper()

	exec, err := NewBadgerExecutor(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func newRedis(t *testing.T) (*RedisExecutor, *miniredis.Miniredis) {
	t.Helper()

	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	exec, err := NewRedisExecutor(RedisConfig{Address: srv.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec, srv
}

func newGRPC(t *testing.T) *GRPCExecutor {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServer(newBadger(t), "kvbench.KV")
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	exec, err := NewGRPCExecutor(
		GRPCConfig{Address: "passthrough:///bufnet", Service: "kvbench.KV", Timeout: time.Second},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func scanKeys(from, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = workload.KeyName(uint64(from + i))
	}
	return keys
}

// exerciseExecutor runs the same lifecycle against every driver
func exerciseExecutor(t *testing.T, exec Executor) {
	ctx := context.Background()
	key := workload.KeyName(1)

	err := exec.Execute(ctx, Operation{Kind: workload.OpRead, Key: key})
	assert.ErrorIs(t, err, ErrNotFound)

	err = exec.Execute(ctx, Operation{Kind: workload.OpReadModifyWrite, Key: key, Value: []byte("v")})
	assert.ErrorIs(t, err, ErrNotFound, "rmw on a missing key fails")

	for i := 0; i < 10; i++ {
		require.NoError(t, exec.Execute(ctx, Operation{
			Kind:  workload.OpInsert,
			Key:   workload.KeyName(uint64(i)),
			Value: []byte(fmt.Sprintf("value-%d", i)),
		}))
	}

	assert.NoError(t, exec.Execute(ctx, Operation{Kind: workload.OpRead, Key: key}))
	assert.NoError(t, exec.Execute(ctx, Operation{Kind: workload.OpUpdate, Key: key, Value: []byte("updated")}))
	assert.NoError(t, exec.Execute(ctx, Operation{Kind: workload.OpReadModifyWrite, Key: key, Value: []byte("rmw")}))
	assert.NoError(t, exec.Execute(ctx, Operation{Kind: workload.OpScan, Key: workload.KeyName(2), ScanKeys: scanKeys(2, 5)}))

	assert.NoError(t, exec.Execute(ctx, Operation{Kind: workload.OpDelete, Key: key}))
	assert.ErrorIs(t, exec.Execute(ctx, Operation{Kind: workload.OpRead, Key: key}), ErrNotFound)

	err = exec.Execute(ctx, Operation{Kind: workload.OperationKind(99), Key: key})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestBadgerExecutor(t *testing.T) {
	exerciseExecutor(t, newBadger(t))
}

func TestBadgerScanStopsAtLimit(t *testing.T) {
	exec := newBadger(t)
	ctx := context.Background()

	var ops []Operation
	for i := 0; i < 20; i++ {
		ops = append(ops, Operation{Kind: workload.OpInsert, Key: workload.KeyName(uint64(i)), Value: []byte("x")})
	}
	require.NoError(t, exec.InsertBatch(ctx, ops))

	n, err := exec.scan([]byte(workload.KeyName(15)), 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "only five records follow the start key")

	n, err = exec.scan([]byte(workload.KeyName(0)), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	stats := exec.Stats()
	assert.Contains(t, stats, "total_size")
}

func TestBadgerHonoursCancelledContext(t *testing.T) {
	exec := newBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, Operation{Kind: workload.OpInsert, Key: "k", Value: []byte("v")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerOnDisk(t *testing.T) {
	exec, err := NewBadgerExecutor(BadgerConfig{DataPath: t.TempDir()})
	require.NoError(t, err)
	defer exec.Close()

	exerciseExecutor(t, exec)
}

func TestRedisExecutor(t *testing.T) {
	exec, _ := newRedis(t)
	exerciseExecutor(t, exec)
}

func TestRedisInsertBatch(t *testing.T) {
	exec, srv := newRedis(t)

	ops := []Operation{
		{Kind: workload.OpInsert, Key: "a", Value: []byte("1")},
		{Kind: workload.OpInsert, Key: "b", Value: []byte("2")},
	}
	require.NoError(t, exec.InsertBatch(context.Background(), ops))

	v, err := srv.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestRedisUnreachable(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	addr := srv.Addr()
	srv.Close()

	_, err = NewRedisExecutor(RedisConfig{Address: addr, Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestGRPCExecutor(t *testing.T) {
	exerciseExecutor(t, newGRPC(t))
}

func TestGRPCUnknownService(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServer(newBadger(t), "kvbench.KV")
	go server.Serve(lis)
	defer server.Stop()

	exec, err := NewGRPCExecutor(
		GRPCConfig{Address: "passthrough:///bufnet", Service: "other.Service", Timeout: time.Second},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	defer exec.Close()

	err = exec.Execute(context.Background(), Operation{Kind: workload.OpRead, Key: "k"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNewFromConfig(t *testing.T) {
	exec, err := New(config.TargetConfig{Driver: "badger", InMemory: true})
	require.NoError(t, err)
	assert.IsType(t, &BadgerExecutor{}, exec)
	require.NoError(t, exec.Close())

	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	exec, err = New(config.TargetConfig{Driver: "REDIS", Address: srv.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisExecutor{}, exec)
	require.NoError(t, exec.Close())

	exec, err = New(config.TargetConfig{Driver: "grpc", Address: "passthrough:///unused", GRPCService: "kvbench.KV"})
	require.NoError(t, err)
	assert.IsType(t, &GRPCExecutor{}, exec)
	require.NoError(t, exec.Close())

	_, err = New(config.TargetConfig{Driver: "cassandra"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
