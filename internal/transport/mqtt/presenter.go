package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// alertMessage is the payload published on <prefix>/alerts/<kind>.
type alertMessage struct {
	EpisodeID     string     `json:"episode_id"`
	Phase         string     `json:"phase"`
	Trigger       string     `json:"trigger,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	LocationKnown bool       `json:"location_known"`
}

// newAlertMessage renders state and location for publication.
func newAlertMessage(state fall.State, loc fall.Location) alertMessage {
	msg := alertMessage{
		EpisodeID:     state.EpisodeID,
		Phase:         state.Phase.String(),
		LocationKnown: loc.Known,
	}

	if state.Trigger != fall.StreamUnknown {
		msg.Trigger = state.Trigger.String()
	}

	if !state.PendingDeadline.IsZero() {
		deadline := state.PendingDeadline.UTC()
		msg.Deadline = &deadline
	}

	if loc.Known {
		msg.Latitude = &loc.Latitude
		msg.Longitude = &loc.Longitude
	}

	return msg
}

// Presenter publishes notifications to the broker without blocking the caller.
type Presenter struct {
	client *Client
}

// NewPresenter creates a presenter on top of client.
func NewPresenter(client *Client) *Presenter {
	return &Presenter{client: client}
}

// ShowPending publishes to alerts/pending.
func (p *Presenter) ShowPending(ctx context.Context, state fall.State) {
	p.publish(ctx, AlertPending, newAlertMessage(state, fall.Location{}))
}

// DismissPending publishes to alerts/dismissed.
func (p *Presenter) DismissPending(ctx context.Context, state fall.State) {
	p.publish(ctx, AlertDismissed, newAlertMessage(state, fall.Location{}))
}

// RaiseEmergency publishes to alerts/emergency.
func (p *Presenter) RaiseEmergency(ctx context.Context, state fall.State, loc fall.Location) {
	p.publish(ctx, AlertEmergency, newAlertMessage(state, loc))
}

func (p *Presenter) publish(ctx context.Context, kind string, msg alertMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorKV(ctx, "Alert not encoded", "kind", kind, "error", err)

		return
	}

	p.client.PublishAsync(ctx, p.client.Topics().Alert(kind), payload)
}
