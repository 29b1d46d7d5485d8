package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// Axes is one scripted reading.
type Axes struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Scenario is a script of readings per stream.
type Scenario struct {
	// Unavailable lists streams that fail to start.
	Unavailable []fall.Stream `yaml:"unavailable"`
	// Loop restarts a stream's script when it runs out.
	Loop bool `yaml:"loop"`
	// Accelerometer readings, one per sampling period.
	Accelerometer []Axes `yaml:"accelerometer"`
	// Gyroscope readings, one per sampling period.
	Gyroscope []Axes `yaml:"gyroscope"`
}

// LoadScenario reads a scenario script from path.
func LoadScenario(path string) (*Scenario, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(contents, &scenario); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}

	return &scenario, nil
}

// readings returns the script of stream.
func (s *Scenario) readings(stream fall.Stream) []Axes {
	switch stream {
	case fall.StreamAccelerometer:
		return s.Accelerometer
	case fall.StreamGyroscope:
		return s.Gyroscope
	default:
		return nil
	}
}

// ScenarioSource replays a Scenario as a Source.
type ScenarioSource struct {
	scenario *Scenario
}

// NewScenarioSource wraps scenario into a Source.
func NewScenarioSource(scenario *Scenario) *ScenarioSource {
	return &ScenarioSource{scenario: scenario}
}

// Subscribe emits one scripted reading per period until the script ends,
// ctx is canceled or the subscription is released.
//
//nolint:ireturn // Source contract.
func (s *ScenarioSource) Subscribe(
	ctx context.Context,
	stream fall.Stream,
	period time.Duration,
	handler Handler,
) (Subscription, error) {
	if slices.Contains(s.scenario.Unavailable, stream) {
		return nil, fmt.Errorf("%s: %w", stream, ErrUnavailable)
	}

	if period <= 0 {
		return nil, fmt.Errorf("%s: invalid period %s: %w", stream, period, ErrUnavailable)
	}

	readings := s.scenario.readings(stream)
	ctx, cancel := context.WithCancel(ctx)
	sub := &scenarioSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for i := 0; ; i++ {
			if i == len(readings) {
				if !s.scenario.Loop || len(readings) == 0 {
					return
				}

				i = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			r := readings[i]
			handler(fall.Sample{X: r.X, Y: r.Y, Z: r.Z, Stream: stream})
		}
	}()

	return sub, nil
}

// scenarioSubscription stops one replay goroutine.
type scenarioSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops the replay and waits for it to exit.
func (s *scenarioSubscription) Unsubscribe() error {
	s.once.Do(s.cancel)
	<-s.done

	return nil
}
