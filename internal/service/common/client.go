//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/fall-monitor/internal/api/grpc/monitor"
	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/wire"
)

// Client wraps the gRPC FallMonitor client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the monitor.
	conn *grpc.ClientConn
	// api is the FallMonitor client.
	api *api.FallMonitorClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor is sent with mutating calls when set.
	actor string
	// dialOptions are appended to the default dial options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor attaches the caller identity to cancel and reset calls.
func WithActor(actor Actor) Option {
	return func(c *Client) {
		c.actor = actor.String()
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the fall monitor.
// Note: this uses insecure transport credentials; the API is meant to listen
// on loopback or a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial fall monitor: %w", err)
	}

	client.conn = conn
	client.api = api.NewFallMonitorClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetStatus retrieves the current state.
func (c *Client) GetStatus(ctx context.Context) (fall.State, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetStatus(callCtx)
	if err != nil {
		return fall.State{}, fmt.Errorf("get status: %w", err)
	}

	return wire.StateFromStatus(resp)
}

// CancelPending dismisses a pending episode and returns the resulting state.
func (c *Client) CancelPending(ctx context.Context) (fall.State, error) {
	return c.mutate(ctx, "cancel pending", c.api.CancelPending)
}

// Reset clears the current episode and returns the resulting state.
func (c *Client) Reset(ctx context.Context) (fall.State, error) {
	return c.mutate(ctx, "reset", c.api.Reset)
}

// Watch calls fn with the current state and every later one until ctx is
// done, the stream ends or fn returns an error. Returns nil when ctx is done.
func (c *Client) Watch(ctx context.Context, fn func(fall.State) error) error {
	stream, err := c.api.WatchStatus(ctx)
	if err != nil {
		return fmt.Errorf("watch status: %w", err)
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("watch status: %w", err)
		}

		state, err := wire.StateFromStatus(resp)
		if err != nil {
			return err
		}

		if err = fn(state); err != nil {
			return err
		}
	}
}

// mutate performs a state-changing unary call.
func (c *Client) mutate(
	ctx context.Context,
	op string,
	call func(context.Context, ...grpc.CallOption) (*structpb.Struct, error),
) (fall.State, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if c.actor != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, api.ActorMetadataKey, c.actor)
	}

	resp, err := call(callCtx)
	if err != nil {
		return fall.State{}, fmt.Errorf("%s: %w", op, err)
	}

	return wire.StateFromStatus(resp)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
