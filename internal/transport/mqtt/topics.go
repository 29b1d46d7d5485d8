package mqtt

import (
	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// Alert kinds published under <prefix>/alerts/.
const (
	AlertPending   = "pending"
	AlertDismissed = "dismissed"
	AlertEmergency = "emergency"
)

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// Sensor is the topic carrying readings of stream.
func (t Topics) Sensor(stream fall.Stream) string {
	return t.Prefix + "/sensors/" + stream.String()
}

// Interval is the retained topic announcing the requested sampling period of stream.
func (t Topics) Interval(stream fall.Stream) string {
	return t.Sensor(stream) + "/interval"
}

// Location is the topic carrying location fixes and permission answers.
func (t Topics) Location() string {
	return t.Prefix + "/location"
}

// Alert is the topic for notifications of kind.
func (t Topics) Alert(kind string) string {
	return t.Prefix + "/alerts/" + kind
}
