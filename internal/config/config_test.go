package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// TestValidate_Defaults checks that a minimal scenario config gets every default.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Sensors: Sensors{Source: SourceScenario, ScenarioFile: "fall.yaml"},
	}

	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultAPIAddress, cfg.APIAddress)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultSamplingPeriod, cfg.Detection.SamplingPeriod)
	require.Equal(t, DefaultConfirmationWindow, cfg.Detection.ConfirmationWindow)
	require.Equal(t, fall.Streams(), cfg.Detection.Streams)
	require.Equal(t, SourceNone, cfg.Location.Source)
	require.Equal(t, PermissionGranted, cfg.Location.Permission)
	require.False(t, cfg.UsesMQTT())
}

// TestValidate_Errors covers rejected settings.
func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]*Config{
		"bad api address": {APIAddress: "bad:address", Sensors: Sensors{Source: SourceScenario, ScenarioFile: "x"}},
		"missing broker":  {Sensors: Sensors{Source: SourceMQTT}},
		"bad qos":         {Sensors: Sensors{Source: SourceMQTT}, MQTT: MQTT{Broker: "tcp://127.0.0.1:1883", QoS: 3}},
		"no scenario":     {Sensors: Sensors{Source: SourceScenario}},
		"unknown source":  {Sensors: Sensors{Source: "bluetooth"}},
		"bad permission": {
			Sensors:  Sensors{Source: SourceScenario, ScenarioFile: "x"},
			Location: Location{Permission: "maybe"},
		},
		"bad coordinates": {
			Sensors:  Sensors{Source: SourceScenario, ScenarioFile: "x"},
			Location: Location{Source: SourceStatic, Latitude: 91},
		},
		"negative window": {
			Sensors:   Sensors{Source: SourceScenario, ScenarioFile: "x"},
			Detection: Detection{ConfirmationWindow: -time.Second},
		},
	}

	for name, cfg := range cases {
		require.Error(t, Validate(cfg), name)
	}

	require.Error(t, Validate(nil))
}

// TestValidate_MQTT fills the topic prefix when a broker is used.
func TestValidate_MQTT(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		MQTT:     MQTT{Broker: "tcp://127.0.0.1:1883"},
		Location: Location{Source: SourceMQTT},
	}

	require.NoError(t, Validate(cfg))
	require.Equal(t, SourceMQTT, cfg.Sensors.Source)
	require.Equal(t, DefaultTopicPrefix, cfg.MQTT.TopicPrefix)
	require.True(t, cfg.UsesMQTT())
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		APIAddress: "127.0.0.1:50070",
		Detection: Detection{
			SamplingPeriod:     250 * time.Millisecond,
			ConfirmationWindow: 2 * time.Second,
			Streams:            []fall.Stream{fall.StreamGyroscope},
		},
		Sensors:  Sensors{Source: SourceScenario, ScenarioFile: "fall.yaml"},
		Location: Location{Source: SourceStatic, Latitude: 55.75, Longitude: 37.62},
		Alert:    Alert{EmergencyCommand: []string{"notify-send", "fall"}},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.APIAddress, loaded.APIAddress)
	require.Equal(t, settings.Detection, loaded.Detection)
	require.Equal(t, settings.Location, loaded.Location)
	require.Equal(t, settings.Alert.EmergencyCommand, loaded.Alert.EmergencyCommand)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_ParsesDurationsAndStreams reads a hand-written file.
func TestLoad_ParsesDurationsAndStreams(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := `
api_addr: 127.0.0.1:50062
detection:
  sampling_period: 100ms
  streams: [accelerometer]
sensors:
  source: scenario
  scenario_file: walk.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, cfg.Detection.SamplingPeriod)
	require.Equal(t, DefaultConfirmationWindow, cfg.Detection.ConfirmationWindow)
	require.Equal(t, []fall.Stream{fall.StreamAccelerometer}, cfg.Detection.Streams)
}

// TestRead_DoesNotValidate lets callers fix settings before validation.
func TestRead_DoesNotValidate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sensors:\n  source: mqtt\n"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, errBrokerRequired)

	cfg, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, SourceMQTT, cfg.Sensors.Source)
	require.Zero(t, cfg.Timeout)

	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
