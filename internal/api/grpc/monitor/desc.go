package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fallmonitor.v1.FallMonitor"

// Full method names.
const (
	GetStatusMethod     = "/" + ServiceName + "/GetStatus"
	CancelPendingMethod = "/" + ServiceName + "/CancelPending"
	ResetMethod         = "/" + ServiceName + "/Reset"
	WatchStatusMethod   = "/" + ServiceName + "/WatchStatus"
)

// FallMonitorServer is the server API of the fall monitor service.
type FallMonitorServer interface {
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	CancelPending(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Reset(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	WatchStatus(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the fall monitor service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FallMonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler(GetStatusMethod, FallMonitorServer.GetStatus)},
		{MethodName: "CancelPending", Handler: unaryHandler(CancelPendingMethod, FallMonitorServer.CancelPending)},
		{MethodName: "Reset", Handler: unaryHandler(ResetMethod, FallMonitorServer.Reset)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchStatus",
			Handler:       watchStatusHandler,
			ServerStreams: true,
		},
	},
	Metadata: "api/fallmonitor/v1/fall_monitor.proto",
}

// RegisterFallMonitorServer registers srv on the registrar.
func RegisterFallMonitorServer(r grpc.ServiceRegistrar, srv FallMonitorServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// unaryMethod is a unary FallMonitorServer method expression.
type unaryMethod func(FallMonitorServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

// unaryHandler adapts a unary method to grpc.MethodDesc, honoring interceptors.
func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return method(srv.(FallMonitorServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(FallMonitorServer), ctx, req.(*emptypb.Empty))
		}

		return interceptor(ctx, in, info, handler)
	}
}

// watchStatusHandler adapts WatchStatus to grpc.StreamDesc.
func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(FallMonitorServer).WatchStatus(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
