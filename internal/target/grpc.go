package target

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kvbench/internal/workload"
)

// GRPCConfig configures the gRPC target. Requests are unary calls to
// /<Service>/<Method> carrying google.protobuf.Struct messages, so any
// service speaking that shape can be benchmarked without generated stubs.
type GRPCConfig struct {
	Address string
	Service string
	Timeout time.Duration
}

// Method names invoked on the service
const (
	MethodGet    = "Get"
	MethodPut    = "Put"
	MethodDelete = "Delete"
	MethodScan   = "Scan"
)

// Request and response fields
const (
	FieldKey   = "key"
	FieldValue = "value"
	FieldLimit = "limit"
	FieldFound = "found"
)

// GRPCExecutor runs operations against a remote key-value service
type GRPCExecutor struct {
	conn    *grpc.ClientConn
	service string
	timeout time.Duration
}

var _ Executor = (*GRPCExecutor)(nil)

// NewGRPCExecutor creates a client connection. Extra dial options are
// appended after the insecure transport default.
func NewGRPCExecutor(config GRPCConfig, opts ...grpc.DialOption) (*GRPCExecutor, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(config.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", config.Address, err)
	}

	return &GRPCExecutor{
		conn:    conn,
		service: config.Service,
		timeout: config.Timeout,
	}, nil
}

func (e *GRPCExecutor) Execute(ctx context.Context, op Operation) error {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	switch op.Kind {
	case workload.OpRead:
		return e.get(ctx, op.Key)
	case workload.OpInsert, workload.OpUpdate:
		return e.put(ctx, op.Key, op.Value)
	case workload.OpDelete:
		_, err := e.invoke(ctx, MethodDelete, map[string]interface{}{FieldKey: op.Key})
		return err
	case workload.OpScan:
		limit := len(op.ScanKeys)
		if limit == 0 {
			limit = 1
		}
		_, err := e.invoke(ctx, MethodScan, map[string]interface{}{FieldKey: op.Key, FieldLimit: limit})
		return err
	case workload.OpReadModifyWrite:
		if err := e.get(ctx, op.Key); err != nil {
			return err
		}
		return e.put(ctx, op.Key, op.Value)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Kind)
	}
}

func (e *GRPCExecutor) get(ctx context.Context, key string) error {
	resp, err := e.invoke(ctx, MethodGet, map[string]interface{}{FieldKey: key})
	if err != nil {
		return err
	}
	if found, ok := resp.GetFields()[FieldFound]; ok && !found.GetBoolValue() {
		return ErrNotFound
	}
	return nil
}

func (e *GRPCExecutor) put(ctx context.Context, key string, value []byte) error {
	_, err := e.invoke(ctx, MethodPut, map[string]interface{}{
		FieldKey:   key,
		FieldValue: string(value),
	})
	return err
}

func (e *GRPCExecutor) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	resp := &structpb.Struct{}
	if err := e.conn.Invoke(ctx, "/"+e.service+"/"+method, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return resp, nil
}

func (e *GRPCExecutor) Close() error {
	return e.conn.Close()
}
