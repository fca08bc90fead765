package target

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kvbench/internal/workload"
)

// NewGRPCServer exposes an embedded badger store over the Struct-based
// protocol GRPCExecutor speaks, so the gRPC path can be exercised end to end
// without an external service.
func NewGRPCServer(store *BadgerExecutor, service string, opts ...grpc.ServerOption) *grpc.Server {
	h := &structHandler{store: store, prefix: "/" + service + "/"}
	opts = append(opts, grpc.UnknownServiceHandler(h.handle))
	return grpc.NewServer(opts...)
}

type structHandler struct {
	store  *BadgerExecutor
	prefix string
}

func (h *structHandler) handle(_ interface{}, stream grpc.ServerStream) error {
	fullMethod, ok := grpc.MethodFromServerStream(stream)
	if !ok || !strings.HasPrefix(fullMethod, h.prefix) {
		return status.Errorf(codes.Unimplemented, "unknown method %q", fullMethod)
	}

	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	resp, err := h.dispatch(stream.Context(), strings.TrimPrefix(fullMethod, h.prefix), req)
	if err != nil {
		return err
	}
	return stream.SendMsg(resp)
}

func (h *structHandler) dispatch(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	key := fields[FieldKey].GetStringValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	var err error
	result := map[string]interface{}{}
	switch method {
	case MethodGet:
		var value []byte
		value, err = h.store.get([]byte(key))
		if errors.Is(err, ErrNotFound) {
			result[FieldFound] = false
			err = nil
		} else if err == nil {
			result[FieldFound] = true
			result[FieldValue] = string(value)
		}
	case MethodPut:
		err = h.store.Execute(ctx, Operation{
			Kind:  workload.OpUpdate,
			Key:   key,
			Value: []byte(fields[FieldValue].GetStringValue()),
		})
	case MethodDelete:
		err = h.store.Execute(ctx, Operation{Kind: workload.OpDelete, Key: key})
	case MethodScan:
		var n int
		n, err = h.store.scan([]byte(key), int(fields[FieldLimit].GetNumberValue()))
		result["count"] = n
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown method %q", method)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(result)
}
