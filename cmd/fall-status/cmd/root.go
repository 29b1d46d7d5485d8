package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/service/watcher"
	"github.com/oshokin/fall-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// follow keeps printing on every transition.
	follow bool
	// asJSON prints the raw status message.
	asJSON bool
	// statusFile is the readout file to read instead of calling the API.
	statusFile string

	// rootCmd represents the base command for reading the monitor status.
	rootCmd = &cobra.Command{
		Use:   "fall-status [server-address]",
		Short: "Show whether a fall is pending or confirmed.",
		Long: `Prints the fall monitor debug readout: whether a fall is pending (and how
long is left to cancel it), whether it was confirmed, and the location sent
with the emergency alert.

With --follow the readout is printed again on every state change. With
--status-file the readout file written by the monitor is read instead of
calling the API.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &watcher.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Follow:        follow,
				StatusFile:    statusFile,
				JSON:          asJSON,
				Output:        cmd.OutOrStdout(),
			}

			return watcher.Run(cmd.Context(), options)
		},
	}
)

// Execute runs the fall-status CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().BoolVarP(&follow, "follow", "f", false, "print the readout on every state change")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the status message as JSON")
	rootCmd.Flags().StringVarP(&statusFile, "status-file", "s", "", "read the status readout file instead of the API")
}
