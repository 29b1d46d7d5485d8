package monitor

import (
	"context"
	"fmt"

	"github.com/oshokin/fall-monitor/internal/alert"
	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/detection/impact"
	"github.com/oshokin/fall-monitor/internal/detection/machine"
	"github.com/oshokin/fall-monitor/internal/detection/sampler"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/location"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/repository/status"
	"github.com/oshokin/fall-monitor/internal/sensor"
	"github.com/oshokin/fall-monitor/internal/transport/mqtt"
)

// daemon holds the wired components of a running monitor.
type daemon struct {
	// settings are the validated settings the daemon was built from.
	settings *config.Config
	// options locate the settings file and hold the overrides re-applied on reload.
	options *Options

	// broker is the MQTT connection, nil when no component needs it.
	broker *mqtt.Client
	// tracker holds the last known location.
	tracker *location.Tracker
	// trackLocation is false when no location source is configured.
	trackLocation bool
	// machine is the fall state machine.
	machine *machine.Machine
	// sampler feeds sensor samples into the machine.
	sampler *sampler.Sampler
	// statusFile receives every committed state, nil when disabled.
	statusFile *status.FileRepository
}

// newDaemon builds every component described by settings.
func newDaemon(ctx context.Context, settings *config.Config, opts *Options) (*daemon, error) {
	d := &daemon{settings: settings, options: opts}

	if settings.UsesMQTT() {
		broker, err := mqtt.Dial(ctx, settings.MQTT, settings.Timeout)
		if err != nil {
			return nil, err
		}

		d.broker = broker
	}

	provider, err := d.locationProvider(ctx)
	if err != nil {
		d.close()

		return nil, err
	}

	d.tracker = location.NewTracker(provider, settings.Location.Timeout)

	d.machine = machine.New(d.presenter(), d.tracker,
		machine.WithWindow(settings.Detection.ConfirmationWindow),
	)

	source, err := d.sensorSource()
	if err != nil {
		d.close()

		return nil, err
	}

	d.sampler = sampler.New(source, impact.NewDetector(), d.machine,
		settings.Detection.Streams,
		settings.Detection.SamplingPeriod,
	)

	if settings.StatusFile != "" {
		d.statusFile = status.NewFileRepository(settings.StatusFile)
	}

	return d, nil
}

// presenter assembles the configured alert presenters.
func (d *daemon) presenter() machine.Presenter {
	presenters := alert.Fanout{alert.Log{}}

	if len(d.settings.Alert.EmergencyCommand) > 0 {
		presenters = append(presenters, alert.NewCommand(d.settings.Alert.EmergencyCommand))
	}

	if d.settings.Alert.MQTT && d.broker != nil {
		presenters = append(presenters, mqtt.NewPresenter(d.broker))
	}

	return presenters
}

// locationProvider builds the configured location provider.
//
//nolint:ireturn // Provider depends on the configured source.
func (d *daemon) locationProvider(ctx context.Context) (location.Provider, error) {
	cfg := d.settings.Location

	switch cfg.Source {
	case config.SourceStatic:
		d.trackLocation = true

		permission := location.PermissionGranted
		if cfg.Permission == config.PermissionDenied {
			permission = location.PermissionDenied
		}

		return location.Static{
			Coordinates: fall.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
			Permission:  permission,
		}, nil
	case config.SourceMQTT:
		d.trackLocation = true

		provider := mqtt.NewLocationProvider(d.broker)
		if err := provider.Start(ctx); err != nil {
			return nil, fmt.Errorf("location: %w", err)
		}

		return provider, nil
	default:
		return location.None{}, nil
	}
}

// sensorSource builds the configured sensor source.
//
//nolint:ireturn // Source depends on the configured kind.
func (d *daemon) sensorSource() (sensor.Source, error) {
	if d.settings.Sensors.Source == config.SourceScenario {
		scenario, err := sensor.LoadScenario(d.settings.Sensors.ScenarioFile)
		if err != nil {
			return nil, err
		}

		return sensor.NewScenarioSource(scenario), nil
	}

	return mqtt.NewSensorSource(d.broker), nil
}

// reload re-reads the settings and applies what can change at runtime:
// the log level and the sampling period.
func (d *daemon) reload(ctx context.Context) {
	settings, err := loadSettings(d.options)
	if err != nil {
		logger.ErrorKV(ctx, "Settings reload failed, keeping current settings", "error", err)

		return
	}

	if err = applyLevel(settings); err != nil {
		logger.WarnKV(ctx, "Log level not applied", "error", err)
	}

	period := settings.Detection.SamplingPeriod
	if period == d.sampler.Period() {
		logger.Info(ctx, "Settings reloaded, sampling period unchanged")

		return
	}

	if err = d.sampler.Reconfigure(ctx, period); err != nil {
		logger.ErrorKV(ctx, "Sampler reconfiguration failed", "error", err)

		return
	}

	d.settings.Detection.SamplingPeriod = period
}

// close releases the broker connection.
func (d *daemon) close() {
	if d.broker != nil {
		d.broker.Close()
	}
}
