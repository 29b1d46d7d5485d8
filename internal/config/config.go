package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// Config holds the settings shared by the fall monitor binaries.
type Config struct {
	// APIAddress is the gRPC address of the monitor status API.
	APIAddress string `yaml:"api_addr"`
	// Timeout is the duration for RPC calls and broker operations.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// LogFormat selects console or json log output.
	LogFormat string `yaml:"log_format"`
	// StatusFile is where the current state readout is written. Empty disables it.
	StatusFile string `yaml:"status_file"`
	// Detection tunes sampling and confirmation.
	Detection Detection `yaml:"detection"`
	// Sensors selects where motion samples come from.
	Sensors Sensors `yaml:"sensors"`
	// MQTT configures the broker connection.
	MQTT MQTT `yaml:"mqtt"`
	// Location configures the location provider.
	Location Location `yaml:"location"`
	// Alert configures emergency notification adapters.
	Alert Alert `yaml:"alert"`
}

// Detection holds the sampling and confirmation settings.
type Detection struct {
	// SamplingPeriod is the update interval requested from each sensor stream.
	SamplingPeriod time.Duration `yaml:"sampling_period"`
	// ConfirmationWindow is how long a pending episode can be cancelled.
	ConfirmationWindow time.Duration `yaml:"confirmation_window"`
	// Streams lists the sensor streams to subscribe to.
	Streams []fall.Stream `yaml:"streams"`
}

// Sensors selects the sample source.
type Sensors struct {
	// Source is "mqtt" or "scenario".
	Source string `yaml:"source"`
	// ScenarioFile is the YAML script replayed by the scenario source.
	ScenarioFile string `yaml:"scenario_file"`
}

// MQTT holds broker connection settings.
type MQTT struct {
	// Broker is the broker URL, e.g. tcp://127.0.0.1:1883.
	Broker string `yaml:"broker"`
	// ClientID is the MQTT client id. A random one is used when empty.
	ClientID string `yaml:"client_id"`
	// TopicPrefix is prepended to every topic.
	TopicPrefix string `yaml:"topic_prefix"`
	// QoS is the quality of service for subscriptions and publications.
	QoS byte `yaml:"qos"`
	// Username for broker authentication.
	Username string `yaml:"username"`
	// Password for broker authentication.
	Password string `yaml:"password"`
}

// Location configures the location provider.
type Location struct {
	// Source is "static", "mqtt" or "none".
	Source string `yaml:"source"`
	// Permission is "granted" or "denied".
	Permission string `yaml:"permission"`
	// Latitude used by the static source.
	Latitude float64 `yaml:"latitude"`
	// Longitude used by the static source.
	Longitude float64 `yaml:"longitude"`
	// Timeout bounds a single location request.
	Timeout time.Duration `yaml:"timeout"`
	// RefreshInterval re-acquires the location periodically when positive.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Alert configures emergency notification adapters.
type Alert struct {
	// EmergencyCommand is started (not awaited) when an episode is confirmed.
	EmergencyCommand []string `yaml:"emergency_command"`
	// MQTT publishes notifications to the broker when true.
	MQTT bool `yaml:"mqtt"`
}

// Sensor and location sources.
const (
	SourceMQTT     = "mqtt"
	SourceScenario = "scenario"
	SourceStatic   = "static"
	SourceNone     = "none"
)

// Location permissions.
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "fall-monitor-settings.yaml"

	// DefaultAPIAddress is used when api_addr is not set.
	DefaultAPIAddress = "127.0.0.1:50061"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultSamplingPeriod is the update interval requested from the sensors.
	DefaultSamplingPeriod = 500 * time.Millisecond

	// DefaultConfirmationWindow is how long a pending fall can be cancelled.
	DefaultConfirmationWindow = 3 * time.Second

	// DefaultTopicPrefix is the MQTT topic prefix.
	DefaultTopicPrefix = "fallmonitor"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	// maxQoS is the highest MQTT quality of service level.
	maxQoS = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownSource is returned for unsupported sensor or location sources.
	errUnknownSource = errors.New("unknown source")
	// errScenarioFileRequired is returned when the scenario source has no script.
	errScenarioFileRequired = errors.New("scenario file must be provided")
	// errBrokerRequired is returned when MQTT is used without a broker.
	errBrokerRequired = errors.New("mqtt broker must be provided")
	// errInvalidQoS is returned for QoS values above 2.
	errInvalidQoS = errors.New("mqtt qos must be 0, 1 or 2")
	// errUnknownPermission is returned for unsupported permission values.
	errUnknownPermission = errors.New("location permission must be granted or denied")
	// errInvalidCoordinates is returned for out-of-range static coordinates.
	errInvalidCoordinates = errors.New("static coordinates out of range")
	// errNegativeDuration is returned when a duration setting is negative.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read parses the configuration at path without validating it, so callers
// can apply overrides before calling Validate.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills defaults for unset fields.
//
//nolint:cyclop // A flat list of checks reads better than helpers here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.APIAddress == "" {
		cfg.APIAddress = DefaultAPIAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.APIAddress); err != nil {
		return fmt.Errorf("invalid api address: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if err := validateDetection(&cfg.Detection); err != nil {
		return err
	}

	usesMQTT := cfg.Alert.MQTT

	switch cfg.Sensors.Source {
	case "":
		cfg.Sensors.Source = SourceMQTT
		usesMQTT = true
	case SourceMQTT:
		usesMQTT = true
	case SourceScenario:
		if cfg.Sensors.ScenarioFile == "" {
			return errScenarioFileRequired
		}
	default:
		return fmt.Errorf("sensors: %w: %q", errUnknownSource, cfg.Sensors.Source)
	}

	locationUsesMQTT, err := validateLocation(&cfg.Location)
	if err != nil {
		return err
	}

	if usesMQTT || locationUsesMQTT {
		if err := validateMQTT(&cfg.MQTT); err != nil {
			return err
		}
	}

	return nil
}

// UsesMQTT reports whether any configured component needs a broker connection.
func (c *Config) UsesMQTT() bool {
	return c.Sensors.Source == SourceMQTT || c.Location.Source == SourceMQTT || c.Alert.MQTT
}

// validateDetection fills sampling defaults.
func validateDetection(d *Detection) error {
	if d.SamplingPeriod < 0 || d.ConfirmationWindow < 0 {
		return fmt.Errorf("detection: %w", errNegativeDuration)
	}

	if d.SamplingPeriod == 0 {
		d.SamplingPeriod = DefaultSamplingPeriod
	}

	if d.ConfirmationWindow == 0 {
		d.ConfirmationWindow = DefaultConfirmationWindow
	}

	if len(d.Streams) == 0 {
		d.Streams = fall.Streams()
	}

	return nil
}

// validateLocation fills location defaults and reports whether MQTT is needed.
func validateLocation(l *Location) (bool, error) {
	if l.Timeout < 0 || l.RefreshInterval < 0 {
		return false, fmt.Errorf("location: %w", errNegativeDuration)
	}

	if l.Timeout == 0 {
		l.Timeout = DefaultTimeout
	}

	switch l.Permission {
	case "":
		l.Permission = PermissionGranted
	case PermissionGranted, PermissionDenied:
	default:
		return false, fmt.Errorf("%w: %q", errUnknownPermission, l.Permission)
	}

	switch l.Source {
	case "":
		l.Source = SourceNone
	case SourceNone:
	case SourceStatic:
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return false, errInvalidCoordinates
		}
	case SourceMQTT:
		return true, nil
	default:
		return false, fmt.Errorf("location: %w: %q", errUnknownSource, l.Source)
	}

	return false, nil
}

// validateMQTT checks the broker URL and fills the topic prefix.
func validateMQTT(m *MQTT) error {
	if m.Broker == "" {
		return errBrokerRequired
	}

	if _, err := url.ParseRequestURI(m.Broker); err != nil {
		return fmt.Errorf("invalid mqtt broker: %w", err)
	}

	if m.QoS > maxQoS {
		return errInvalidQoS
	}

	if m.TopicPrefix == "" {
		m.TopicPrefix = DefaultTopicPrefix
	}

	return nil
}
