// Package sampler subscribes to the motion streams, computes magnitudes and
// forwards impact signals to the state machine.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/fall-monitor/internal/detection/impact"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/sensor"
)

var (
	// ErrSensorUnavailable is reported when a single stream fails to start.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrNoSensors is returned when no stream could be started.
	ErrNoSensors = errors.New("no sensor stream available")
	// ErrAlreadyStarted is returned by Start on an active sampler.
	ErrAlreadyStarted = errors.New("sampler already started")
	// ErrNotStarted is returned by Reconfigure before Start.
	ErrNotStarted = errors.New("sampler not started")
	// errInvalidPeriod is returned for non-positive sampling periods.
	errInvalidPeriod = errors.New("sampling period must be positive")
)

// Sink receives impact signals.
type Sink interface {
	Impact(ctx context.Context, signal fall.ImpactSignal) (fall.State, error)
}

// Sampler owns the stream subscriptions of a monitoring session.
type Sampler struct {
	// source delivers the samples.
	source sensor.Source
	// detector turns magnitudes into signals.
	detector *impact.Detector
	// sink receives the signals.
	sink Sink
	// streams are the configured streams.
	streams []fall.Stream
	// seq numbers samples in arrival order across streams.
	seq atomic.Uint64

	// mu guards the fields below.
	mu sync.Mutex
	// ctx is the context given to Start; handlers forward with it.
	ctx context.Context //nolint:containedctx // Subscriptions outlive the Start call.
	// period is the current sampling period.
	period time.Duration
	// subs holds the active subscriptions.
	subs map[fall.Stream]sensor.Subscription
}

// New creates a sampler for streams at the given period.
func New(
	source sensor.Source,
	detector *impact.Detector,
	sink Sink,
	streams []fall.Stream,
	period time.Duration,
) *Sampler {
	return &Sampler{
		source:   source,
		detector: detector,
		sink:     sink,
		streams:  streams,
		period:   period,
	}
}

// Run starts the subscriptions and releases them when ctx is canceled.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	defer s.Stop(ctx)

	<-ctx.Done()

	return nil
}

// Start subscribes to every configured stream. Streams that fail are reported
// and skipped; ErrNoSensors is returned only if none started.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs != nil {
		return ErrAlreadyStarted
	}

	if s.period <= 0 {
		return errInvalidPeriod
	}

	s.ctx = logger.WithName(ctx, "sampler")

	return s.subscribeLocked()
}

// Stop releases every subscription. It is safe to call on a stopped sampler.
func (s *Sampler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribeLocked(ctx)
	s.subs = nil
}

// Reconfigure releases all subscriptions and subscribes again with period.
func (s *Sampler) Reconfigure(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errInvalidPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		return ErrNotStarted
	}

	s.unsubscribeLocked(ctx)
	s.period = period

	logger.InfoKV(ctx, "Sensor subscriptions reconfigured", "period", period.String())

	return s.subscribeLocked()
}

// Active returns the streams that are currently subscribed.
func (s *Sampler) Active() []fall.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]fall.Stream, 0, len(s.subs))

	for _, stream := range s.streams {
		if _, ok := s.subs[stream]; ok {
			active = append(active, stream)
		}
	}

	return active
}

// Period returns the current sampling period.
func (s *Sampler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.period
}

// subscribeLocked subscribes each stream. The caller holds mu.
func (s *Sampler) subscribeLocked() error {
	ctx := s.ctx
	subs := make(map[fall.Stream]sensor.Subscription, len(s.streams))

	for _, stream := range s.streams {
		if _, dup := subs[stream]; dup {
			continue
		}

		threshold, known := s.detector.Threshold(stream)
		if !known {
			logger.WarnKV(ctx, "No impact threshold for sensor stream, skipping it", "stream", stream.String())

			continue
		}

		sub, err := s.source.Subscribe(ctx, stream, s.period, s.handler(stream))
		if err != nil {
			logger.ErrorKV(ctx, "Sensor stream unavailable, continuing without it",
				"stream", stream.String(),
				"error", fmt.Errorf("%w: %w", ErrSensorUnavailable, err),
			)

			continue
		}

		subs[stream] = sub
		logger.InfoKV(ctx, "Subscribed to sensor stream",
			"stream", stream.String(),
			"period", s.period.String(),
			"threshold", threshold,
		)
	}

	if len(subs) == 0 {
		s.subs = nil

		return ErrNoSensors
	}

	s.subs = subs

	return nil
}

// unsubscribeLocked releases every subscription. The caller holds mu.
func (s *Sampler) unsubscribeLocked(ctx context.Context) {
	for stream, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.WarnKV(ctx, "Unsubscribe failed", "stream", stream.String(), "error", err)
		}

		delete(s.subs, stream)
	}
}

// handler returns the sample callback for stream.
func (s *Sampler) handler(stream fall.Stream) sensor.Handler {
	ctx := s.ctx

	return func(sample fall.Sample) {
		sample.Stream = stream
		sample.Seq = s.seq.Add(1)

		signal, ok := s.detector.EvaluateSample(sample)
		if !ok {
			return
		}

		if _, err := s.sink.Impact(ctx, signal); err != nil {
			if ctx.Err() != nil {
				return
			}

			logger.ErrorKV(ctx, "Impact signal not applied",
				"stream", stream.String(),
				"magnitude", signal.Magnitude,
				"error", err,
			)
		}
	}
}
