package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/fall-monitor/internal/api/grpc/monitor"
	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/repository/status"
	"github.com/oshokin/fall-monitor/internal/version"
)

// Options controls the fall-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the API address from the settings.
	ListenAddress string
	// StatusFile overrides the status readout path from the settings.
	StatusFile string
	// ScenarioFile switches the sensor source to the given scenario script.
	ScenarioFile string
	// LogLevel overrides the log level from the settings.
	LogLevel string
}

// Run starts the daemon and blocks until ctx is canceled or a component fails.
func Run(ctx context.Context, opts *Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	if err = applyLogging(settings); err != nil {
		return err
	}

	ctx = logger.WithName(ctx, "fall-monitor")
	logger.InfoKV(ctx, "Starting fall monitor", version.KV()...)

	d, err := newDaemon(ctx, settings, opts)
	if err != nil {
		return fmt.Errorf("initialise monitor: %w", err)
	}

	defer d.close()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.APIAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.APIAddress, err)
	}

	return d.serve(ctx, lis)
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(opts *Options) (*config.Config, error) {
	settings, err := config.Read(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(settings, opts)

	if err = config.Validate(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return settings, nil
}

// applyOverrides copies command line values over settings.
func applyOverrides(settings *config.Config, opts *Options) {
	if opts.ListenAddress != "" {
		settings.APIAddress = opts.ListenAddress
	}

	if opts.StatusFile != "" {
		settings.StatusFile = opts.StatusFile
	}

	if opts.ScenarioFile != "" {
		settings.Sensors.Source = config.SourceScenario
		settings.Sensors.ScenarioFile = opts.ScenarioFile
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}
}

// errUnknownLogLevel is returned for unsupported log levels.
var errUnknownLogLevel = errors.New("unknown log level")

// applyLogging configures the global logger from settings.
func applyLogging(settings *config.Config) error {
	format, err := logger.ParseFormat(settings.LogFormat)
	if err != nil {
		return fmt.Errorf("log format %q: %w", settings.LogFormat, err)
	}

	if format != logger.FormatConsole {
		logger.SetLogger(logger.New(format))
	}

	return applyLevel(settings)
}

// applyLevel sets the global log level from settings, if one is configured.
func applyLevel(settings *config.Config) error {
	if settings.LogLevel == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(settings.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, settings.LogLevel)
	}

	logger.SetLevel(level)

	return nil
}

// serve runs every component until ctx is canceled.
func (d *daemon) serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.machine.Run(gctx)
	})

	if d.trackLocation {
		g.Go(func() error {
			return d.tracker.Run(gctx, d.settings.Location.RefreshInterval)
		})
	}

	if d.statusFile != nil {
		updates, stop := d.machine.Watch()

		g.Go(func() error {
			defer stop()

			status.Follow(gctx, d.statusFile, updates)

			return nil
		})
	}

	if err := d.sampler.Start(gctx); err != nil {
		cancel()
		_ = lis.Close()
		_ = g.Wait()

		return fmt.Errorf("start sensors: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()

	api.NewServer(d.machine).Register(grpcServer)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	logger.InfoKV(ctx, "Fall monitor listening",
		"api_address", lis.Addr().String(),
		"sensors", d.settings.Sensors.Source,
		"streams", d.sampler.Active(),
		"sampling_period", d.sampler.Period().String(),
		"confirmation_window", d.machine.Window().String(),
		"status_file", d.settings.StatusFile,
	)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	g.Go(func() error {
		defer signal.Stop(hup)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				d.reload(gctx)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info(ctx, "Shutting down fall monitor")
		healthServer.Shutdown()
		d.sampler.Stop(ctx)
		grpcServer.GracefulStop()

		return nil
	})

	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	err := g.Wait()

	logger.Info(ctx, "Fall monitor stopped")

	return err
}
