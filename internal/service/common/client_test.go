//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	api "github.com/oshokin/fall-monitor/internal/api/grpc/monitor"
	"github.com/oshokin/fall-monitor/internal/detection/machine"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// nopPresenter ignores notifications.
type nopPresenter struct{}

func (nopPresenter) ShowPending(context.Context, fall.State)                   {}
func (nopPresenter) DismissPending(context.Context, fall.State)                {}
func (nopPresenter) RaiseEmergency(context.Context, fall.State, fall.Location) {}

// serveMachine runs a machine behind an in-memory gRPC server and returns a client.
func serveMachine(t *testing.T, m *machine.Machine) *Client {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = m.Run(ctx)
	}()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	api.NewServer(m).Register(server)

	go func() {
		_ = server.Serve(listener)
	}()

	client, err := Dial(ctx, "passthrough:///bufnet",
		WithCallTimeout(5*time.Second),
		WithActor(Actor{Hostname: "box", Username: "me"}),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		})),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()

		server.Stop()
		cancel()
		<-m.Done()
	})

	return client
}

// TestClient_CancelPending drives a real machine through the API.
func TestClient_CancelPending(t *testing.T) {
	t.Parallel()

	m := machine.New(nopPresenter{}, nil, machine.WithWindow(time.Hour))
	client := serveMachine(t, m)
	ctx := context.Background()

	state, err := client.GetStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, fall.PhaseIdle, state.Phase)

	_, err = m.Impact(ctx, fall.ImpactSignal{Stream: fall.StreamAccelerometer, Magnitude: 3})
	require.NoError(t, err)

	state, err = client.GetStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, fall.PhasePending, state.Phase)
	require.Equal(t, fall.StreamAccelerometer, state.Trigger)

	state, err = client.CancelPending(ctx)
	require.NoError(t, err)
	require.Equal(t, fall.PhaseIdle, state.Phase)

	state, err = client.Reset(ctx)
	require.NoError(t, err)
	require.Equal(t, fall.PhaseIdle, state.Phase)
}

// errEnough stops a watch from the callback.
var errEnough = errors.New("enough")

// TestClient_Watch receives the current state and later transitions.
func TestClient_Watch(t *testing.T) {
	t.Parallel()

	m := machine.New(nopPresenter{}, nil, machine.WithWindow(time.Hour))
	client := serveMachine(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var phases []fall.Phase

	err := client.Watch(ctx, func(state fall.State) error {
		phases = append(phases, state.Phase)

		switch state.Phase {
		case fall.PhaseIdle:
			_, err := m.Impact(ctx, fall.ImpactSignal{Stream: fall.StreamGyroscope, Magnitude: 4})
			return err
		case fall.PhasePending:
			return errEnough
		default:
			return nil
		}
	})
	require.ErrorIs(t, err, errEnough)
	require.Equal(t, []fall.Phase{fall.PhaseIdle, fall.PhasePending}, phases)
}
