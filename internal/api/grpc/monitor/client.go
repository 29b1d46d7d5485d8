package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// FallMonitorClient calls the fall monitor service over a connection.
type FallMonitorClient struct {
	cc grpc.ClientConnInterface
}

// NewFallMonitorClient returns a client using cc.
func NewFallMonitorClient(cc grpc.ClientConnInterface) *FallMonitorClient {
	return &FallMonitorClient{cc: cc}
}

// GetStatus calls GetStatus.
func (c *FallMonitorClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.unary(ctx, GetStatusMethod, opts...)
}

// CancelPending calls CancelPending.
func (c *FallMonitorClient) CancelPending(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.unary(ctx, CancelPendingMethod, opts...)
}

// Reset calls Reset.
func (c *FallMonitorClient) Reset(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.unary(ctx, ResetMethod, opts...)
}

// WatchStatus opens the status stream.
func (c *FallMonitorClient) WatchStatus(
	ctx context.Context,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchStatusMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err = x.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}

func (c *FallMonitorClient) unary(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
