package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/sensor"
)

// reading is the payload of a sensor topic.
type reading struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// errBadReading is returned for payloads that are not a complete finite reading.
var errBadReading = errors.New("malformed sensor reading")

// decodeReading parses a {"x":..,"y":..,"z":..} payload.
func decodeReading(stream fall.Stream, payload []byte) (fall.Sample, error) {
	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fall.Sample{}, fmt.Errorf("%w: %w", errBadReading, err)
	}

	if r.X == nil || r.Y == nil || r.Z == nil {
		return fall.Sample{}, fmt.Errorf("%w: missing axis", errBadReading)
	}

	sample := fall.Sample{X: *r.X, Y: *r.Y, Z: *r.Z, Stream: stream}
	if math.IsInf(sample.Magnitude(), 0) || math.IsNaN(sample.Magnitude()) {
		return fall.Sample{}, fmt.Errorf("%w: not finite", errBadReading)
	}

	return sample, nil
}

// SensorSource delivers readings published by a device bridge on
// <prefix>/sensors/<stream>. The requested period is announced on the
// retained <prefix>/sensors/<stream>/interval topic in milliseconds; the
// bridge is expected to honor it.
type SensorSource struct {
	client *Client
}

// NewSensorSource creates a source on top of client.
func NewSensorSource(client *Client) *SensorSource {
	return &SensorSource{client: client}
}

// Subscribe implements sensor.Source.
//
//nolint:ireturn // Source contract.
func (s *SensorSource) Subscribe(
	ctx context.Context,
	stream fall.Stream,
	period time.Duration,
	handler sensor.Handler,
) (sensor.Subscription, error) {
	topics := s.client.Topics()
	interval := strconv.FormatInt(period.Milliseconds(), 10)

	if err := s.client.Publish(ctx, topics.Interval(stream), true, []byte(interval)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", sensor.ErrUnavailable, stream, err)
	}

	sub := &subscription{
		client: s.client,
		topic:  topics.Sensor(stream),
	}

	onMessage := func(_ paho.Client, msg paho.Message) {
		sample, err := decodeReading(stream, msg.Payload())
		if err != nil {
			logger.DebugKV(ctx, "Sensor reading dropped", "topic", msg.Topic(), "error", err)

			return
		}

		if sub.active() {
			handler(sample)
		}
	}

	if err := s.client.Subscribe(ctx, sub.topic, onMessage); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", sensor.ErrUnavailable, stream, err)
	}

	return sub, nil
}

// subscription is an active sensor topic subscription.
type subscription struct {
	client *Client
	topic  string

	mu      sync.Mutex
	stopped bool
}

func (s *subscription) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.stopped
}

// Unsubscribe implements sensor.Subscription.
func (s *subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return nil
	}

	s.stopped = true
	s.mu.Unlock()

	return s.client.Unsubscribe(context.Background(), s.topic)
}
