package alert

import (
	"context"

	"github.com/oshokin/fall-monitor/internal/detection/machine"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// Log writes every notification to the context logger.
type Log struct{}

// ShowPending logs the cancellable warning.
func (Log) ShowPending(ctx context.Context, state fall.State) {
	logger.WarnKV(ctx, "Fall detected, cancel within the confirmation window",
		"episode_id", state.EpisodeID,
		"trigger", state.Trigger.String(),
		"deadline", state.PendingDeadline,
	)
}

// DismissPending logs the dismissal.
func (Log) DismissPending(ctx context.Context, state fall.State) {
	logger.InfoKV(ctx, "Fall warning dismissed", "episode_id", state.EpisodeID)
}

// RaiseEmergency logs the emergency alert.
func (Log) RaiseEmergency(ctx context.Context, state fall.State, location fall.Location) {
	if !location.Known {
		logger.ErrorKV(ctx, "Fall detected, no response received, emergency alert triggered",
			"episode_id", state.EpisodeID,
			"location", "unknown",
		)

		return
	}

	logger.ErrorKV(ctx, "Fall detected, no response received, emergency alert triggered",
		"episode_id", state.EpisodeID,
		"latitude", location.Latitude,
		"longitude", location.Longitude,
	)
}

// Fanout forwards notifications to several presenters in order.
type Fanout []machine.Presenter

// ShowPending forwards to every presenter.
func (f Fanout) ShowPending(ctx context.Context, state fall.State) {
	for _, p := range f {
		p.ShowPending(ctx, state)
	}
}

// DismissPending forwards to every presenter.
func (f Fanout) DismissPending(ctx context.Context, state fall.State) {
	for _, p := range f {
		p.DismissPending(ctx, state)
	}
}

// RaiseEmergency forwards to every presenter.
func (f Fanout) RaiseEmergency(ctx context.Context, state fall.State, location fall.Location) {
	for _, p := range f {
		p.RaiseEmergency(ctx, state, location)
	}
}
