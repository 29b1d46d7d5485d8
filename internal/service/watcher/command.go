package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/repository/status"
	"github.com/oshokin/fall-monitor/internal/service/common"
	"github.com/oshokin/fall-monitor/internal/wire"
)

// Options controls the fall-status command.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional API address override.
	ServerAddress string
	// Follow keeps printing the readout on every transition.
	Follow bool
	// StatusFile reads the readout file written by the monitor instead of
	// calling the API.
	StatusFile string
	// JSON prints the status message as JSON instead of the readout.
	JSON bool
	// Output receives the readout.
	Output io.Writer
}

// errFollowStatusFile is returned when following is requested together with a status file.
var errFollowStatusFile = errors.New("follow is not supported with a status file")

// Run prints the current state, and with Follow every later one, until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "fall-status")

	show := func(state fall.State) error {
		return write(opts.Output, state, time.Now(), opts.JSON)
	}

	if opts.StatusFile != "" {
		if opts.Follow {
			return errFollowStatusFile
		}

		state, err := status.NewFileRepository(opts.StatusFile).Load(ctx)
		if err != nil {
			return err
		}

		return show(state)
	}

	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	serverAddress := cfg.APIAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	if serverAddress == "" {
		serverAddress = config.DefaultAPIAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial monitor: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	if !opts.Follow {
		state, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}

		return show(state)
	}

	logger.DebugKV(ctx, "Following monitor status", "server_address", serverAddress)

	return client.Watch(ctx, show)
}

// write renders state as JSON or as the readout.
func write(w io.Writer, state fall.State, now time.Time, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, Readout(state, now))

		return err
	}

	data, err := protojson.Marshal(wire.StatusFromState(state))
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	_, err = fmt.Fprintf(w, "%s\n", data)

	return err
}

// Readout renders the debug readout of state at now.
func Readout(state fall.State, now time.Time) string {
	pending := "NO"
	if state.Phase == fall.PhasePending {
		remaining := state.Remaining(now).Round(100 * time.Millisecond)
		pending = fmt.Sprintf("YES (%s left, trigger %s)", remaining, state.Trigger)
	}

	confirmed := "NO"
	if state.Phase == fall.PhaseConfirmed {
		confirmed = "YES"
	}

	out := fmt.Sprintf("Fall pending: %s\nFall confirmed: %s\n", pending, confirmed)

	if state.EpisodeID != "" {
		out += fmt.Sprintf("Episode: %s\n", state.EpisodeID)
	}

	if state.Phase == fall.PhaseConfirmed {
		if state.Location.Known {
			out += fmt.Sprintf("Location: %.6f, %.6f\n", state.Location.Latitude, state.Location.Longitude)
		} else {
			out += "Location: unknown\n"
		}
	}

	if state.LastError != "" {
		out += fmt.Sprintf("Last error: %s\n", state.LastError)
	}

	return out
}
