package alert

import (
	"context"
	"os"
	"os/exec"
	"strconv"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// Environment variables passed to the emergency command.
const (
	EnvEpisodeID     = "FALL_EPISODE_ID"
	EnvLatitude      = "FALL_LATITUDE"
	EnvLongitude     = "FALL_LONGITUDE"
	EnvLocationKnown = "FALL_LOCATION_KNOWN"
)

// Command starts an OS command when an emergency is raised.
// The command is started asynchronously and reaped in the background; the OS
// takes over the rest. Pending and dismissed notifications are ignored.
type Command struct {
	// argv is the program and its arguments.
	argv []string
}

// NewCommand returns a presenter running argv on emergencies.
func NewCommand(argv []string) *Command {
	return &Command{argv: append([]string(nil), argv...)}
}

// ShowPending does nothing.
func (*Command) ShowPending(context.Context, fall.State) {}

// DismissPending does nothing.
func (*Command) DismissPending(context.Context, fall.State) {}

// RaiseEmergency starts the command with the episode and location in its environment.
func (c *Command) RaiseEmergency(ctx context.Context, state fall.State, location fall.Location) {
	if len(c.argv) == 0 {
		return
	}

	// The alert must outlive a monitor shutdown.
	//nolint:gosec // The command comes from the operator's configuration.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), c.argv[0], c.argv[1:]...)
	cmd.Env = append(os.Environ(), commandEnv(state, location)...)

	if err := cmd.Start(); err != nil {
		logger.ErrorKV(ctx, "Emergency command failed to start", "command", c.argv[0], "error", err)

		return
	}

	logger.InfoKV(ctx, "Emergency command started", "command", c.argv[0], "pid", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.WarnKV(ctx, "Emergency command exited with error", "command", c.argv[0], "error", err)
		}
	}()
}

// commandEnv renders the emergency as environment variables.
func commandEnv(state fall.State, location fall.Location) []string {
	env := []string{
		EnvEpisodeID + "=" + state.EpisodeID,
		EnvLocationKnown + "=" + strconv.FormatBool(location.Known),
	}

	if location.Known {
		env = append(env,
			EnvLatitude+"="+strconv.FormatFloat(location.Latitude, 'f', -1, 64),
			EnvLongitude+"="+strconv.FormatFloat(location.Longitude, 'f', -1, 64),
		)
	}

	return env
}
