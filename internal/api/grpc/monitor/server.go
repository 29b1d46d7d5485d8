package monitor

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/fall-monitor/internal/detection/machine"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/wire"
)

// ActorMetadataKey carries the user@host of the caller for audit logs.
const ActorMetadataKey = "x-fall-actor"

// Service abstracts the state machine operations the transport layer depends on.
type Service interface {
	State() fall.State
	Cancel(ctx context.Context) (fall.State, error)
	Reset(ctx context.Context) (fall.State, error)
	Watch() (<-chan fall.State, func())
}

// Server implements FallMonitorServer.
type Server struct {
	// service provides the state machine operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Register registers s and returns it for chaining.
func (s *Server) Register(r grpc.ServiceRegistrar) *Server {
	RegisterFallMonitorServer(r, s)

	return s
}

// GetStatus returns the current state.
func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return wire.StatusFromState(s.service.State()), nil
}

// CancelPending dismisses a pending episode. Outside Pending it is a no-op.
func (s *Server) CancelPending(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.InfoKV(ctx, "Cancel requested", "actor", actorFromContext(ctx))

	state, err := s.service.Cancel(ctx)
	if err != nil {
		return nil, toStatusError(ctx, "cancel pending", err)
	}

	return wire.StatusFromState(state), nil
}

// Reset clears the current episode.
func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.InfoKV(ctx, "Reset requested", "actor", actorFromContext(ctx))

	state, err := s.service.Reset(ctx)
	if err != nil {
		return nil, toStatusError(ctx, "reset", err)
	}

	return wire.StatusFromState(state), nil
}

// WatchStatus streams the current state and every later one until the client
// goes away or the machine stops.
func (s *Server) WatchStatus(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	updates, stop := s.service.Watch()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-updates:
			if !ok {
				return status.Error(codes.Unavailable, "monitor stopped")
			}

			if err := stream.Send(wire.StatusFromState(state)); err != nil {
				return err
			}
		}
	}
}

// toStatusError maps service errors to gRPC status codes.
func toStatusError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, machine.ErrStopped):
		return status.Error(codes.Unavailable, "monitor stopped")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		logger.ErrorKV(ctx, "Request failed", "operation", op, "error", err)

		return status.Errorf(codes.Internal, "unable to %s", op)
	}
}

// actorFromContext returns the caller identity sent in metadata, if any.
func actorFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "<unknown>"
	}

	if values := md.Get(ActorMetadataKey); len(values) > 0 {
		return values[0]
	}

	return "<unknown>"
}
