package wire

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// Struct keys of a status message.
const (
	KeyPhase           = "phase"
	KeyPendingDeadline = "pending_deadline"
	KeyEpisodeID       = "episode_id"
	KeyTrigger         = "trigger"
	KeySince           = "since"
	KeyLatitude        = "latitude"
	KeyLongitude       = "longitude"
	KeyLocationKnown   = "location_known"
	KeyLastError       = "last_error"
)

// ErrInvalidStatus is returned when a status message cannot be decoded.
var ErrInvalidStatus = errors.New("invalid status message")

// StatusFromState renders a State as a protobuf Struct.
// Timestamps are RFC 3339 strings; unset ones are empty.
func StatusFromState(state fall.State) *structpb.Struct {
	trigger := ""
	if state.Trigger != fall.StreamUnknown {
		trigger = state.Trigger.String()
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			KeyPhase:           structpb.NewStringValue(state.Phase.String()),
			KeyPendingDeadline: structpb.NewStringValue(formatTime(state.PendingDeadline)),
			KeyEpisodeID:       structpb.NewStringValue(state.EpisodeID),
			KeyTrigger:         structpb.NewStringValue(trigger),
			KeySince:           structpb.NewStringValue(formatTime(state.Since)),
			KeyLatitude:        structpb.NewNumberValue(state.Location.Latitude),
			KeyLongitude:       structpb.NewNumberValue(state.Location.Longitude),
			KeyLocationKnown:   structpb.NewBoolValue(state.Location.Known),
			KeyLastError:       structpb.NewStringValue(state.LastError),
		},
	}
}

// StateFromStatus decodes a protobuf Struct produced by StatusFromState.
func StateFromStatus(status *structpb.Struct) (fall.State, error) {
	if status == nil {
		return fall.State{}, fmt.Errorf("%w: empty message", ErrInvalidStatus)
	}

	fields := status.GetFields()

	phase, ok := fall.ParsePhase(fields[KeyPhase].GetStringValue())
	if !ok {
		return fall.State{}, fmt.Errorf("%w: unknown phase %q", ErrInvalidStatus, fields[KeyPhase].GetStringValue())
	}

	deadline, err := parseTime(fields[KeyPendingDeadline].GetStringValue())
	if err != nil {
		return fall.State{}, fmt.Errorf("%w: %s: %w", ErrInvalidStatus, KeyPendingDeadline, err)
	}

	since, err := parseTime(fields[KeySince].GetStringValue())
	if err != nil {
		return fall.State{}, fmt.Errorf("%w: %s: %w", ErrInvalidStatus, KeySince, err)
	}

	var trigger fall.Stream
	if name := fields[KeyTrigger].GetStringValue(); name != "" {
		if trigger, err = fall.ParseStream(name); err != nil {
			return fall.State{}, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
		}
	}

	state := fall.State{
		Phase:           phase,
		PendingDeadline: deadline,
		EpisodeID:       fields[KeyEpisodeID].GetStringValue(),
		Trigger:         trigger,
		Since:           since,
		LastError:       fields[KeyLastError].GetStringValue(),
	}

	if fields[KeyLocationKnown].GetBoolValue() {
		state.Location = fall.KnownLocation(fall.Coordinates{
			Latitude:  fields[KeyLatitude].GetNumberValue(),
			Longitude: fields[KeyLongitude].GetNumberValue(),
		})
	}

	if err = state.Validate(); err != nil {
		return fall.State{}, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}

	return state, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, s)
}
