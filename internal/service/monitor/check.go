package monitor

import (
	"context"
	"fmt"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// CheckOptions controls the check-config command.
type CheckOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// WritePath receives the settings with defaults filled in. Empty skips writing.
	WritePath string
}

// CheckConfig validates the settings file and optionally writes the effective settings.
func CheckConfig(ctx context.Context, opts *CheckOptions) error {
	ctx = logger.WithName(ctx, "check-config")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("check settings: %w", err)
	}

	logger.InfoKV(ctx, "Settings are valid",
		"api_addr", settings.APIAddress,
		"sensors", settings.Sensors.Source,
		"location", settings.Location.Source,
		"sampling_period", settings.Detection.SamplingPeriod.String(),
		"confirmation_window", settings.Detection.ConfirmationWindow.String(),
	)

	if opts.WritePath == "" {
		return nil
	}

	if err = config.Save(opts.WritePath, settings); err != nil {
		return fmt.Errorf("write effective settings: %w", err)
	}

	logger.InfoKV(ctx, "Effective settings written", "path", opts.WritePath)

	return nil
}
