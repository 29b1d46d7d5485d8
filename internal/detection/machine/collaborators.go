package machine

import (
	"context"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// Presenter renders the alert UI. Calls are fire-and-forget and must not block.
// Presenters receive copies of the state and cannot change it.
type Presenter interface {
	// ShowPending shows the cancellable warning for a new episode.
	ShowPending(ctx context.Context, state fall.State)
	// DismissPending hides the warning after a cancellation.
	DismissPending(ctx context.Context, state fall.State)
	// RaiseEmergency fires the emergency notification for a confirmed episode.
	RaiseEmergency(ctx context.Context, state fall.State, location fall.Location)
}

// LocationReader returns the last known location without blocking.
type LocationReader interface {
	Snapshot() fall.Location
}
