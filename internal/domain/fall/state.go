package fall

import (
	"errors"
	"time"
)

// Phase is the position of the monitor in the current episode.
type Phase int

const (
	// PhaseIdle means no episode is in progress.
	PhaseIdle Phase = iota
	// PhasePending means an impact was observed and the confirmation window is open.
	PhasePending
	// PhaseConfirmed means the window elapsed without cancellation.
	PhaseConfirmed
)

// String returns a human-readable phase for diagnostics.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// ParsePhase converts a phase name back into a Phase.
func ParsePhase(s string) (Phase, bool) {
	switch s {
	case "idle":
		return PhaseIdle, true
	case "pending":
		return PhasePending, true
	case "confirmed":
		return PhaseConfirmed, true
	default:
		return PhaseIdle, false
	}
}

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Location is the last known location of the user.
// Known is false when no fix is available.
type Location struct {
	Coordinates

	Known bool
}

// KnownLocation returns a Location carrying the provided coordinates.
func KnownLocation(c Coordinates) Location {
	return Location{Coordinates: c, Known: true}
}

var (
	// errDeadlineWithoutPending is returned when a deadline is set outside of Pending.
	errDeadlineWithoutPending = errors.New("pending deadline set while not pending")
	// errPendingWithoutDeadline is returned when Pending has no deadline.
	errPendingWithoutDeadline = errors.New("pending without deadline")
)

// State is the fall state of a monitoring session.
type State struct {
	// Phase is the current phase.
	Phase Phase
	// PendingDeadline is when the pending episode is confirmed. Zero unless Pending.
	PendingDeadline time.Time
	// EpisodeID identifies the current episode. Empty while Idle.
	EpisodeID string
	// Trigger is the stream whose signal opened the episode.
	Trigger Stream
	// Since is when the current phase was entered.
	Since time.Time
	// Location is the snapshot attached to the emergency alert.
	Location Location
	// LastError holds the last hard error surfaced by a transition.
	LastError string
}

// Validate checks that PendingDeadline is set if and only if the phase is Pending.
func (s State) Validate() error {
	hasDeadline := !s.PendingDeadline.IsZero()

	switch {
	case s.Phase == PhasePending && !hasDeadline:
		return errPendingWithoutDeadline
	case s.Phase != PhasePending && hasDeadline:
		return errDeadlineWithoutPending
	default:
		return nil
	}
}

// Remaining returns how much of the confirmation window is left at now.
func (s State) Remaining(now time.Time) time.Duration {
	if s.Phase != PhasePending {
		return 0
	}

	if left := s.PendingDeadline.Sub(now); left > 0 {
		return left
	}

	return 0
}
