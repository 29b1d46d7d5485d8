package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/service/canceller"
	"github.com/oshokin/fall-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// reset clears a confirmed episode too.
	reset bool
	// wait bounds the retries.
	wait time.Duration

	// rootCmd represents the "I'm OK" button.
	rootCmd = &cobra.Command{
		Use:   "fall-cancel [server-address]",
		Short: "Dismiss a pending fall before the emergency alert is raised.",
		Long: `Tells the fall monitor that you are OK. A pending fall is dismissed and
monitoring continues. If the fall was already confirmed the command fails,
unless --reset is given, which clears the confirmed episode.

Failed calls are retried every second until --wait elapses.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &canceller.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Reset:         reset,
				Wait:          wait,
			}

			return canceller.Run(cmd.Context(), options)
		},
	}
)

// Execute runs the fall-cancel CLI and exits with non-zero status on error.
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
	rootCmd.Flags().BoolVar(&reset, "reset", false, "also clear a confirmed fall")
	rootCmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "give up retrying after this long (0 retries forever)")
}
