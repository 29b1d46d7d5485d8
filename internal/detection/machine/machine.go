package machine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// DefaultWindow is the confirmation window of a pending episode.
const DefaultWindow = 3 * time.Second

const (
	// requestQueueSize buffers impact requests from the sensor streams.
	requestQueueSize = 16
	// cancelQueueSize buffers user cancel and reset requests.
	cancelQueueSize = 4
	// deadlineQueueSize buffers fired countdown callbacks.
	deadlineQueueSize = 4
)

var (
	// ErrSchedulingFailure is returned when the countdown cannot be armed.
	// The episode is dropped back to Idle.
	ErrSchedulingFailure = errors.New("confirmation countdown could not be scheduled")
	// ErrStopped is returned for requests made after the loop exited.
	ErrStopped = errors.New("state machine stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("state machine already running")
)

// requestKind enumerates the events accepted from callers.
type requestKind int

const (
	kindImpact requestKind = iota
	kindCancel
	kindReset
)

// request is an event delivered to the loop with a reply channel.
type request struct {
	kind   requestKind
	signal fall.ImpactSignal
	reply  chan result
}

// result is the loop's answer to a request.
type result struct {
	state fall.State
	err   error
}

// Option configures a Machine.
type Option func(*Machine)

// WithWindow overrides the confirmation window.
func WithWindow(window time.Duration) Option {
	return func(m *Machine) {
		if window > 0 {
			m.window = window
		}
	}
}

// WithScheduler overrides the countdown scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithClock overrides the time source used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine is the fall state machine. Create it with New and start it with Run.
type Machine struct {
	// presenter receives notifications for every visible transition.
	presenter Presenter
	// locations provides the emergency location snapshot.
	locations LocationReader
	// scheduler arms the confirmation countdown.
	scheduler Scheduler
	// window is the confirmation window.
	window time.Duration
	// now is the clock.
	now func() time.Time

	// requests carries impact signals.
	requests chan request
	// cancels carries cancel and reset requests; it is served first.
	cancels chan request
	// deadlines carries tokens of fired countdowns.
	deadlines chan uint64
	// done is closed when Run returns.
	done chan struct{}
	// running guards against a second Run.
	running atomic.Bool

	// state, token and timer are owned by the loop goroutine.
	state fall.State
	token uint64
	timer Timer

	// snapshot is the latest committed state for readers.
	snapshot atomic.Pointer[fall.State]
	// watchers receive committed states.
	watchers *watchers
}

// New creates an idle Machine.
func New(presenter Presenter, locations LocationReader, opts ...Option) *Machine {
	m := &Machine{
		presenter: presenter,
		locations: locations,
		scheduler: TimerScheduler{},
		window:    DefaultWindow,
		now:       time.Now,
		requests:  make(chan request, requestQueueSize),
		cancels:   make(chan request, cancelQueueSize),
		deadlines: make(chan uint64, deadlineQueueSize),
		done:      make(chan struct{}),
		watchers:  newWatchers(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.state = fall.State{Phase: fall.PhaseIdle, Since: m.now()}
	initial := m.state
	m.snapshot.Store(&initial)

	return m
}

// Window returns the confirmation window.
func (m *Machine) Window() time.Duration {
	return m.window
}

// Run processes events until ctx is canceled. All transitions happen here.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx = logger.WithName(ctx, "machine")

	defer func() {
		m.stopTimer()
		close(m.done)
		m.watchers.closeAll()
	}()

	logger.InfoKV(ctx, "Fall state machine started", "window", m.window.String())

	for {
		// Cancels go first so a queued cancel is never overtaken.
		select {
		case req := <-m.cancels:
			m.serve(ctx, req)

			continue
		default:
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Fall state machine stopped")

			return nil
		case req := <-m.cancels:
			m.serve(ctx, req)
		case req := <-m.requests:
			m.serve(ctx, req)
		case token := <-m.deadlines:
			m.drainCancels(ctx)
			m.handleDeadline(ctx, token)
		}
	}
}

// Impact delivers an impact signal and returns the resulting state.
// The error wraps ErrSchedulingFailure if the countdown could not be armed.
func (m *Machine) Impact(ctx context.Context, signal fall.ImpactSignal) (fall.State, error) {
	return m.submit(ctx, m.requests, request{kind: kindImpact, signal: signal})
}

// Cancel delivers a user cancellation and returns the resulting state.
func (m *Machine) Cancel(ctx context.Context) (fall.State, error) {
	return m.submit(ctx, m.cancels, request{kind: kindCancel})
}

// Reset clears a confirmed or pending episode and returns the resulting state.
func (m *Machine) Reset(ctx context.Context) (fall.State, error) {
	return m.submit(ctx, m.cancels, request{kind: kindReset})
}

// State returns the latest committed state.
func (m *Machine) State() fall.State {
	return *m.snapshot.Load()
}

// Watch returns a channel that receives the current state and every later one.
// Slow readers only see the latest state. The channel is closed by stop or when
// the machine stops.
func (m *Machine) Watch() (<-chan fall.State, func()) {
	return m.watchers.add(m.State)
}

// Done is closed when Run returns.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// submit sends a request to the loop and waits for its result.
func (m *Machine) submit(ctx context.Context, queue chan<- request, req request) (fall.State, error) {
	req.reply = make(chan result, 1)

	select {
	case queue <- req:
	case <-m.done:
		return m.State(), ErrStopped
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.state, res.err
	case <-m.done:
		select {
		case res := <-req.reply:
			return res.state, res.err
		default:
			return m.State(), ErrStopped
		}
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// serve applies a request and answers it.
func (m *Machine) serve(ctx context.Context, req request) {
	var err error

	switch req.kind {
	case kindImpact:
		err = m.handleImpact(ctx, req.signal)
	case kindCancel:
		m.handleCancel(ctx, "cancel")
	case kindReset:
		m.handleReset(ctx)
	}

	req.reply <- result{state: m.state, err: err}
}

// drainCancels applies every queued cancel or reset before a deadline.
func (m *Machine) drainCancels(ctx context.Context) {
	for {
		select {
		case req := <-m.cancels:
			m.serve(ctx, req)
		default:
			return
		}
	}
}

// handleImpact opens an episode from Idle; signals in other phases are ignored.
func (m *Machine) handleImpact(ctx context.Context, signal fall.ImpactSignal) error {
	if m.state.Phase != fall.PhaseIdle {
		logger.DebugKV(ctx, "Impact suppressed",
			"phase", m.state.Phase.String(),
			"stream", signal.Stream.String(),
			"magnitude", signal.Magnitude,
			"seq", signal.Seq,
			"episode_id", m.state.EpisodeID,
		)

		return nil
	}

	now := m.now()
	m.token++
	token := m.token

	timer, err := m.scheduler.Schedule(m.window, m.deadlineFunc(token))
	if err != nil {
		m.token++
		m.state.LastError = fmt.Sprintf("%s: %v", ErrSchedulingFailure, err)
		m.commit()

		logger.ErrorKV(ctx, "Pending episode dropped, countdown not scheduled",
			"stream", signal.Stream.String(),
			"seq", signal.Seq,
			"error", err,
		)

		return fmt.Errorf("%w: %w", ErrSchedulingFailure, err)
	}

	m.timer = timer
	m.state = fall.State{
		Phase:           fall.PhasePending,
		PendingDeadline: now.Add(m.window),
		EpisodeID:       uuid.NewString(),
		Trigger:         signal.Stream,
		Since:           now,
	}
	m.commit()

	logger.InfoKV(ctx, "Impact observed, confirmation window opened",
		"episode_id", m.state.EpisodeID,
		"stream", signal.Stream.String(),
		"magnitude", signal.Magnitude,
		"seq", signal.Seq,
		"deadline", m.state.PendingDeadline,
	)

	m.presenter.ShowPending(ctx, m.state)

	return nil
}

// handleCancel returns a pending episode to Idle.
func (m *Machine) handleCancel(ctx context.Context, reason string) {
	if m.state.Phase != fall.PhasePending {
		logger.DebugKV(ctx, "Cancel ignored", "phase", m.state.Phase.String(), "reason", reason)

		return
	}

	episodeID := m.state.EpisodeID
	remaining := m.state.Remaining(m.now())

	m.token++
	m.stopTimer()

	dismissed := m.state
	m.state = fall.State{Phase: fall.PhaseIdle, Since: m.now()}
	m.commit()

	// The presenter gets the episode that was dismissed, with the deadline cleared.
	dismissed.Phase = fall.PhaseIdle
	dismissed.PendingDeadline = time.Time{}
	dismissed.Since = m.state.Since

	logger.InfoKV(ctx, "Pending episode cancelled",
		"episode_id", episodeID,
		"reason", reason,
		"remaining", remaining.String(),
	)

	m.presenter.DismissPending(ctx, dismissed)
}

// handleReset clears a confirmed episode, or cancels a pending one.
func (m *Machine) handleReset(ctx context.Context) {
	switch m.state.Phase {
	case fall.PhasePending:
		m.handleCancel(ctx, "reset")
	case fall.PhaseConfirmed:
		episodeID := m.state.EpisodeID
		m.state = fall.State{Phase: fall.PhaseIdle, Since: m.now()}
		m.commit()

		logger.InfoKV(ctx, "Confirmed episode cleared", "episode_id", episodeID)
	case fall.PhaseIdle:
	}
}

// handleDeadline confirms the pending episode if token is still current.
func (m *Machine) handleDeadline(ctx context.Context, token uint64) {
	if m.state.Phase != fall.PhasePending || token != m.token {
		logger.DebugKV(ctx, "Stale deadline ignored", "phase", m.state.Phase.String())

		return
	}

	m.timer = nil

	var location fall.Location
	if m.locations != nil {
		location = m.locations.Snapshot()
	}

	m.state.Phase = fall.PhaseConfirmed
	m.state.PendingDeadline = time.Time{}
	m.state.Since = m.now()
	m.state.Location = location
	m.commit()

	logger.WarnKV(ctx, "Fall confirmed, raising emergency",
		"episode_id", m.state.EpisodeID,
		"trigger", m.state.Trigger.String(),
		"location_known", location.Known,
		"latitude", location.Latitude,
		"longitude", location.Longitude,
	)

	m.presenter.RaiseEmergency(ctx, m.state, location)
}

// deadlineFunc returns the countdown callback for token.
func (m *Machine) deadlineFunc(token uint64) func() {
	return func() {
		select {
		case m.deadlines <- token:
		case <-m.done:
		}
	}
}

// stopTimer stops the armed countdown, if any.
func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// commit publishes the loop's state to readers.
func (m *Machine) commit() {
	committed := m.state
	m.snapshot.Store(&committed)
	m.watchers.publish(committed)
}
