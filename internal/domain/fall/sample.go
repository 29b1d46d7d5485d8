package fall

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Stream identifies a motion sensor stream.
type Stream int

const (
	// StreamUnknown is the zero value and never produces signals.
	StreamUnknown Stream = iota
	// StreamAccelerometer delivers linear acceleration samples.
	StreamAccelerometer
	// StreamGyroscope delivers rotation rate samples.
	StreamGyroscope
)

// ErrUnknownStream is returned when a stream name cannot be parsed.
var ErrUnknownStream = errors.New("unknown sensor stream")

// Streams returns all supported streams in a stable order.
func Streams() []Stream {
	return []Stream{StreamAccelerometer, StreamGyroscope}
}

// String returns the stream name used in configuration, topics and the API.
func (s Stream) String() string {
	switch s {
	case StreamAccelerometer:
		return "accelerometer"
	case StreamGyroscope:
		return "gyroscope"
	default:
		return "unknown"
	}
}

// ParseStream converts a stream name into a Stream.
func ParseStream(name string) (Stream, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "accelerometer", "accel":
		return StreamAccelerometer, nil
	case "gyroscope", "gyro":
		return StreamGyroscope, nil
	default:
		return StreamUnknown, fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stream) MarshalText() ([]byte, error) {
	if s == StreamUnknown {
		return nil, ErrUnknownStream
	}

	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stream) UnmarshalText(text []byte) error {
	parsed, err := ParseStream(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Sample is a single 3-axis reading delivered by a sensor stream.
type Sample struct {
	// X, Y, Z are the axis values.
	X, Y, Z float64
	// Stream is the stream that delivered the sample.
	Stream Stream
	// Seq is the logical arrival order assigned by the sampler.
	Seq uint64
}

// Magnitude returns the Euclidean norm of the reading.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// ImpactSignal is a single threshold crossing observed on a stream.
type ImpactSignal struct {
	// Stream is the stream whose threshold was crossed.
	Stream Stream
	// Magnitude is the magnitude that crossed the threshold.
	Magnitude float64
	// Seq is the arrival order of the sample that produced the signal.
	Seq uint64
}
