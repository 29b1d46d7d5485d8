package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/location"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// fix is the payload of the location topic.
type fix struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Permission string   `json:"permission"`
}

// LocationProvider answers location requests from the latest message on
// <prefix>/location. A message with "permission":"denied" revokes access.
type LocationProvider struct {
	client *Client

	mu         sync.RWMutex
	last       fall.Coordinates
	known      bool
	permission location.Permission
}

// NewLocationProvider creates a provider on top of client. Call Start to subscribe.
func NewLocationProvider(client *Client) *LocationProvider {
	return &LocationProvider{
		client:     client,
		permission: location.PermissionGranted,
	}
}

// Start subscribes to the location topic.
func (p *LocationProvider) Start(ctx context.Context) error {
	return p.client.Subscribe(ctx, p.client.Topics().Location(), func(_ paho.Client, msg paho.Message) {
		if err := p.apply(msg.Payload()); err != nil {
			logger.DebugKV(ctx, "Location message dropped", "topic", msg.Topic(), "error", err)
		}
	})
}

// apply records a location message.
func (p *LocationProvider) apply(payload []byte) error {
	var f fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch f.Permission {
	case "denied":
		p.permission = location.PermissionDenied
		p.known = false

		return nil
	case "granted":
		p.permission = location.PermissionGranted
	}

	if f.Latitude == nil || f.Longitude == nil {
		return nil
	}

	if *f.Latitude < -90 || *f.Latitude > 90 || *f.Longitude < -180 || *f.Longitude > 180 {
		return fmt.Errorf("coordinates out of range: %v, %v", *f.Latitude, *f.Longitude)
	}

	p.last = fall.Coordinates{Latitude: *f.Latitude, Longitude: *f.Longitude}
	p.known = true
	p.permission = location.PermissionGranted

	return nil
}

// RequestPermission implements location.Provider.
func (p *LocationProvider) RequestPermission(context.Context) (location.Permission, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.permission, nil
}

// CurrentLocation implements location.Provider.
func (p *LocationProvider) CurrentLocation(context.Context) (fall.Coordinates, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.permission == location.PermissionDenied {
		return fall.Coordinates{}, location.ErrPermissionDenied
	}

	if !p.known {
		return fall.Coordinates{}, location.ErrUnavailable
	}

	return p.last, nil
}
