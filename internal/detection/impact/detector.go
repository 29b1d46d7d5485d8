// Package impact evaluates sensor magnitudes against fixed per-stream thresholds.
package impact

import "github.com/oshokin/fall-monitor/internal/domain/fall"

// Fixed thresholds per stream.
const (
	// AccelerometerThreshold is the linear acceleration magnitude (m/s²) that signals an impact.
	AccelerometerThreshold = 2.5
	// GyroscopeThreshold is the rotation rate magnitude (rad/s) that signals an impact.
	GyroscopeThreshold = 3.0
)

// Detector reports every threshold crossing. It keeps no state between calls;
// suppressing repeated signals is up to the state machine.
type Detector struct {
	thresholds map[fall.Stream]float64
}

// NewDetector returns a detector with the fixed thresholds.
func NewDetector() *Detector {
	return &Detector{
		thresholds: map[fall.Stream]float64{
			fall.StreamAccelerometer: AccelerometerThreshold,
			fall.StreamGyroscope:     GyroscopeThreshold,
		},
	}
}

// Threshold returns the threshold of the stream and whether the stream is known.
func (d *Detector) Threshold(stream fall.Stream) (float64, bool) {
	threshold, ok := d.thresholds[stream]

	return threshold, ok
}

// Evaluate returns a signal if magnitude strictly exceeds the stream's threshold.
func (d *Detector) Evaluate(stream fall.Stream, magnitude float64) (fall.ImpactSignal, bool) {
	threshold, ok := d.thresholds[stream]
	if !ok || !(magnitude > threshold) {
		return fall.ImpactSignal{}, false
	}

	return fall.ImpactSignal{
		Stream:    stream,
		Magnitude: magnitude,
	}, true
}

// EvaluateSample computes the sample magnitude and evaluates it.
func (d *Detector) EvaluateSample(sample fall.Sample) (fall.ImpactSignal, bool) {
	signal, ok := d.Evaluate(sample.Stream, sample.Magnitude())
	signal.Seq = sample.Seq

	return signal, ok
}
