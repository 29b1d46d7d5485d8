package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/service/monitor"
	"github.com/oshokin/fall-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// statusFile overrides the status readout path.
	statusFile string
	// scenarioFile replays a scripted scenario instead of live sensors.
	scenarioFile string
	// logLevel overrides the configured log level.
	logLevel string
	// writePath receives the effective settings of check-config.
	writePath string

	// rootCmd represents the base command for running the monitor daemon.
	rootCmd = &cobra.Command{
		Use:   "fall-monitor [listen-address]",
		Short: "Detect falls from motion sensors and raise an emergency alert.",
		Long: `Starts the fall monitor daemon.

Accelerometer and gyroscope samples are read from an MQTT broker or replayed
from a scenario script. An impact opens a confirmation window; if nobody
cancels it with fall-cancel before it closes, an emergency alert is raised
with the last known location.

The gRPC status API listens on api_addr from the configuration file unless an
address is given as argument (e.g., 127.0.0.1:50061). Send SIGHUP to reload
the configuration.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &monitor.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StatusFile:    statusFile,
				ScenarioFile:  scenarioFile,
				LogLevel:      logLevel,
			}

			return monitor.Run(cmd.Context(), options)
		},
	}

	// checkConfigCmd validates the settings file without starting the daemon.
	checkConfigCmd = &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file.",
		Long: `Validates the configuration file and reports the effective settings.

With --write the settings, with every default filled in, are saved to the
given path.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer logger.Sync()

			return monitor.CheckConfig(cmd.Context(), &monitor.CheckOptions{
				ConfigPath: configPath,
				WritePath:  writePath,
			})
		},
	}
)

// Execute runs the fall-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&statusFile, "status-file", "s", "", "path of the status readout file")
	rootCmd.Flags().StringVar(&scenarioFile, "scenario", "", "replay sensor samples from a scenario script")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	checkConfigCmd.Flags().StringVarP(&writePath, "write", "w", "", "write the effective settings to this path")
	rootCmd.AddCommand(checkConfigCmd)
}
