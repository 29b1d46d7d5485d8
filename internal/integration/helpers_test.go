package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/service/common"
	"github.com/oshokin/fall-monitor/internal/service/monitor"
)

// impactScenario sends one accelerometer impact and then stays quiet.
const impactScenario = `
accelerometer:
  - {x: 0, y: 0, z: 3}
  - {x: 0, y: 0, z: 1}
  - {x: 0, y: 0, z: 1}
`

// reservePort finds a free local TCP address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// instance is a monitor started for a test.
type instance struct {
	addr       string
	configPath string
	statusPath string
}

// startMonitor runs the daemon with the impact scenario and the given window.
func startMonitor(t *testing.T, window time.Duration, loc config.Location) *instance {
	t.Helper()

	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(impactScenario), 0o600))

	inst := &instance{
		addr:       reservePort(t),
		configPath: filepath.Join(dir, "settings.yaml"),
		statusPath: filepath.Join(dir, "status.json"),
	}

	require.NoError(t, config.Save(inst.configPath, &config.Config{
		APIAddress: inst.addr,
		Timeout:    2 * time.Second,
		StatusFile: inst.statusPath,
		Detection: config.Detection{
			SamplingPeriod:     20 * time.Millisecond,
			ConfirmationWindow: window,
		},
		Sensors: config.Sensors{
			Source:       config.SourceScenario,
			ScenarioFile: scenarioPath,
		},
		Location: loc,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- monitor.Run(ctx, &monitor.Options{ConfigPath: inst.configPath})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("monitor did not stop")
		}
	})

	return inst
}

// dial connects a client to inst.
func (inst *instance) dial(t *testing.T) *common.Client {
	t.Helper()

	c, err := common.Dial(context.Background(), inst.addr, common.WithCallTimeout(2*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	return c
}

// waitPhase polls the monitor until it reports phase.
func waitPhase(t *testing.T, c *common.Client, phase fall.Phase) fall.State {
	t.Helper()

	var last fall.State

	require.Eventually(t, func() bool {
		state, err := c.GetStatus(context.Background())
		if err != nil {
			return false
		}

		last = state

		return state.Phase == phase
	}, 10*time.Second, 10*time.Millisecond, "phase %s not reached", phase)

	return last
}
