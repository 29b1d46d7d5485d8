package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-monitor/internal/detection/impact"
	"github.com/oshokin/fall-monitor/internal/detection/machine"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/sensor"
)

var errTestSensorDown = errors.New("sensor down")

// fakeSource hands out subscriptions and lets tests push samples.
type fakeSource struct {
	mu           sync.Mutex
	failing      map[fall.Stream]bool
	handlers     map[fall.Stream]sensor.Handler
	periods      map[fall.Stream]time.Duration
	subscribes   int
	unsubscribes int
}

// newFakeSource returns a source where the listed streams fail.
func newFakeSource(failing ...fall.Stream) *fakeSource {
	f := &fakeSource{
		failing:  make(map[fall.Stream]bool),
		handlers: make(map[fall.Stream]sensor.Handler),
		periods:  make(map[fall.Stream]time.Duration),
	}

	for _, s := range failing {
		f.failing[s] = true
	}

	return f
}

// Subscribe registers handler for stream.
//
//nolint:ireturn // Test double.
func (f *fakeSource) Subscribe(
	_ context.Context,
	stream fall.Stream,
	period time.Duration,
	handler sensor.Handler,
) (sensor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing[stream] {
		return nil, errTestSensorDown
	}

	if _, dup := f.handlers[stream]; dup {
		panic("duplicate listener for " + stream.String())
	}

	f.subscribes++
	f.handlers[stream] = handler
	f.periods[stream] = period

	return &fakeSubscription{source: f, stream: stream}, nil
}

// emit delivers a sample to the stream's listener, if any.
func (f *fakeSource) emit(stream fall.Stream, x, y, z float64) bool {
	f.mu.Lock()
	handler, ok := f.handlers[stream]
	f.mu.Unlock()

	if ok {
		handler(fall.Sample{X: x, Y: y, Z: z})
	}

	return ok
}

// listeners returns the number of registered handlers.
func (f *fakeSource) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.handlers)
}

// fakeSubscription removes its handler on Unsubscribe.
type fakeSubscription struct {
	source *fakeSource
	stream fall.Stream
}

// Unsubscribe removes the handler.
func (s *fakeSubscription) Unsubscribe() error {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()

	delete(s.source.handlers, s.stream)
	s.source.unsubscribes++

	return nil
}

// recordingSink records forwarded signals.
type recordingSink struct {
	mu      sync.Mutex
	signals []fall.ImpactSignal
	err     error
}

// Impact records the signal.
func (r *recordingSink) Impact(_ context.Context, s fall.ImpactSignal) (fall.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.signals = append(r.signals, s)

	return fall.State{}, r.err
}

// received returns a copy of the recorded signals.
func (r *recordingSink) received() []fall.ImpactSignal {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]fall.ImpactSignal(nil), r.signals...)
}

// TestSampler_ForwardsCrossingsOnly checks magnitude computation and sequence numbers.
func TestSampler_ForwardsCrossingsOnly(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	sink := new(recordingSink)
	s := New(src, impact.NewDetector(), sink, fall.Streams(), 500*time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Equal(t, 500*time.Millisecond, src.periods[fall.StreamAccelerometer])

	src.emit(fall.StreamAccelerometer, 1, 0, 0)
	src.emit(fall.StreamAccelerometer, 1.5, 2, 0) // 2.5 exactly, not a crossing
	src.emit(fall.StreamAccelerometer, 3, 0, 0)
	src.emit(fall.StreamGyroscope, 0, 3, 0) // 3.0 exactly, not a crossing
	src.emit(fall.StreamGyroscope, 0, 0, 4)

	signals := sink.received()
	require.Len(t, signals, 2)
	require.Equal(t, fall.StreamAccelerometer, signals[0].Stream)
	require.Equal(t, uint64(3), signals[0].Seq)
	require.Equal(t, fall.StreamGyroscope, signals[1].Stream)
	require.InDelta(t, 4.0, signals[1].Magnitude, 1e-9)
	require.Equal(t, uint64(5), signals[1].Seq)
}

// TestSampler_DegradesToSingleStream keeps running when one stream fails.
func TestSampler_DegradesToSingleStream(t *testing.T) {
	t.Parallel()

	src := newFakeSource(fall.StreamGyroscope)
	sink := new(recordingSink)
	s := New(src, impact.NewDetector(), sink, fall.Streams(), time.Second)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	require.Equal(t, []fall.Stream{fall.StreamAccelerometer}, s.Active())
	require.False(t, src.emit(fall.StreamGyroscope, 0, 0, 9))
	require.True(t, src.emit(fall.StreamAccelerometer, 0, 0, 9))
	require.Len(t, sink.received(), 1)
}

// TestSampler_NoSensors fails when every stream fails.
func TestSampler_NoSensors(t *testing.T) {
	t.Parallel()

	src := newFakeSource(fall.StreamAccelerometer, fall.StreamGyroscope)
	s := New(src, impact.NewDetector(), new(recordingSink), fall.Streams(), time.Second)

	require.ErrorIs(t, s.Start(context.Background()), ErrNoSensors)
	require.Empty(t, s.Active())
	require.ErrorIs(t, s.Reconfigure(context.Background(), time.Second), ErrNotStarted)
}

// TestSampler_SkipsStreamsWithoutThreshold never subscribes a stream the detector cannot judge.
func TestSampler_SkipsStreamsWithoutThreshold(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	streams := []fall.Stream{fall.StreamUnknown, fall.StreamGyroscope}
	s := New(src, impact.NewDetector(), new(recordingSink), streams, time.Second)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, []fall.Stream{fall.StreamGyroscope}, s.Active())
	require.Equal(t, 1, src.subscribes)

	s.Stop(context.Background())
}

// TestSampler_ReconfigureResubscribes releases old listeners before adding new ones.
func TestSampler_ReconfigureResubscribes(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	s := New(src, impact.NewDetector(), new(recordingSink), fall.Streams(), time.Second)

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Reconfigure(context.Background(), 250*time.Millisecond))
	require.Equal(t, 250*time.Millisecond, s.Period())
	require.Equal(t, 250*time.Millisecond, src.periods[fall.StreamGyroscope])
	require.Equal(t, 2, src.listeners())
	require.Equal(t, 4, src.subscribes)
	require.Equal(t, 2, src.unsubscribes)

	require.Error(t, s.Reconfigure(context.Background(), 0))

	s.Stop(context.Background())
	require.Zero(t, src.listeners())

	// Stop is idempotent.
	s.Stop(context.Background())
	require.Equal(t, 4, src.unsubscribes)
}

// TestSampler_RunReleasesOnCancel unsubscribes when the context ends.
func TestSampler_RunReleasesOnCancel(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		src := newFakeSource()
		s := New(src, impact.NewDetector(), new(recordingSink), fall.Streams(), time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		synctest.Wait()
		require.Equal(t, 2, src.listeners())

		cancel()
		require.NoError(t, <-done)
		require.Zero(t, src.listeners())
	})
}

// TestSampler_SinkErrorIsNotFatal keeps forwarding after a failed impact.
func TestSampler_SinkErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	sink := &recordingSink{err: machine.ErrSchedulingFailure}
	s := New(src, impact.NewDetector(), sink, fall.Streams(), time.Second)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	src.emit(fall.StreamAccelerometer, 5, 0, 0)
	src.emit(fall.StreamAccelerometer, 5, 0, 0)
	require.Len(t, sink.received(), 2)
}

// TestSampler_ScenarioAThroughMachine drives the real machine from a scripted source.
func TestSampler_ScenarioAThroughMachine(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		presenter := new(countingPresenter)
		m := machine.New(presenter, nil)

		go func() {
			_ = m.Run(ctx)
		}()

		src := sensor.NewScenarioSource(&sensor.Scenario{
			Accelerometer: []sensor.Axes{{X: 1}, {Y: 1}, {Z: 3}},
		})

		s := New(src, impact.NewDetector(), m, fall.Streams(), 500*time.Millisecond)
		require.NoError(t, s.Start(ctx))

		defer s.Stop(ctx)

		time.Sleep(1499 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, fall.PhaseIdle, m.State().Phase)

		time.Sleep(time.Millisecond)
		synctest.Wait()
		require.Equal(t, fall.PhasePending, m.State().Phase)

		time.Sleep(machine.DefaultWindow)
		synctest.Wait()
		require.Equal(t, fall.PhaseConfirmed, m.State().Phase)

		presenter.mu.Lock()
		defer presenter.mu.Unlock()

		require.Equal(t, 1, presenter.emergencies)
	})
}

// countingPresenter counts emergencies.
type countingPresenter struct {
	mu          sync.Mutex
	emergencies int
}

// ShowPending does nothing.
func (*countingPresenter) ShowPending(context.Context, fall.State) {}

// DismissPending does nothing.
func (*countingPresenter) DismissPending(context.Context, fall.State) {}

// RaiseEmergency counts the call.
func (p *countingPresenter) RaiseEmergency(context.Context, fall.State, fall.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emergencies++
}
