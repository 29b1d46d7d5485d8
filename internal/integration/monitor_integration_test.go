package integration

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/repository/status"
	"github.com/oshokin/fall-monitor/internal/service/canceller"
	"github.com/oshokin/fall-monitor/internal/service/watcher"
)

// TestMonitor_ConfirmsWithLocation lets an impact run out its window and checks
// the emergency carries the static location, over the API and in the readout file.
func TestMonitor_ConfirmsWithLocation(t *testing.T) {
	t.Parallel()

	inst := startMonitor(t, 300*time.Millisecond, config.Location{
		Source:    config.SourceStatic,
		Latitude:  37.7749,
		Longitude: -122.4194,
	})
	c := inst.dial(t)

	state := waitPhase(t, c, fall.PhaseConfirmed)
	require.Equal(t, fall.StreamAccelerometer, state.Trigger)
	require.NotEmpty(t, state.EpisodeID)
	require.Equal(t, fall.KnownLocation(fall.Coordinates{Latitude: 37.7749, Longitude: -122.4194}), state.Location)

	repo := status.NewFileRepository(inst.statusPath)

	require.Eventually(t, func() bool {
		saved, err := repo.Load(context.Background())

		return err == nil && saved.Phase == fall.PhaseConfirmed && saved.EpisodeID == state.EpisodeID
	}, 5*time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	require.NoError(t, watcher.Run(context.Background(), &watcher.Options{
		ConfigPath: inst.configPath,
		Output:     &out,
	}))
	require.Contains(t, out.String(), "Fall confirmed: YES")
	require.Contains(t, out.String(), "Location: 37.774900, -122.419400")

	// Cancelling is too late now.
	err := canceller.Run(context.Background(), &canceller.Options{ConfigPath: inst.configPath})
	require.ErrorIs(t, err, canceller.ErrAlreadyConfirmed)

	// Reset clears the episode.
	require.NoError(t, canceller.Run(context.Background(), &canceller.Options{
		ConfigPath: inst.configPath,
		Reset:      true,
	}))
	waitPhase(t, c, fall.PhaseIdle)
}

// TestMonitor_CancelPending dismisses the pending fall within the window.
func TestMonitor_CancelPending(t *testing.T) {
	t.Parallel()

	inst := startMonitor(t, time.Minute, config.Location{Source: config.SourceStatic, Permission: config.PermissionDenied})
	c := inst.dial(t)

	pending := waitPhase(t, c, fall.PhasePending)
	require.Positive(t, pending.Remaining(time.Now()))

	require.NoError(t, canceller.Run(context.Background(), &canceller.Options{
		ConfigPath: inst.configPath,
		Wait:       5 * time.Second,
	}))

	state, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, fall.PhaseIdle, state.Phase)
	require.Empty(t, state.EpisodeID)
}

// TestMonitor_Follow streams transitions until the fall is confirmed.
func TestMonitor_Follow(t *testing.T) {
	t.Parallel()

	inst := startMonitor(t, 2*time.Second, config.Location{})
	c := inst.dial(t)

	// Wait for the API to come up.
	require.Eventually(t, func() bool {
		_, err := c.GetStatus(context.Background())

		return err == nil
	}, 10*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var seen []fall.Phase

	err := c.Watch(ctx, func(state fall.State) error {
		if len(seen) == 0 || seen[len(seen)-1] != state.Phase {
			seen = append(seen, state.Phase)
		}

		if state.Phase == fall.PhaseConfirmed {
			require.False(t, state.Location.Known)
			cancel()
		}

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, fall.PhaseConfirmed, seen[len(seen)-1])
	require.Contains(t, seen, fall.PhasePending)
}
