package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
)

// Permission is the answer to a location permission request.
type Permission int

const (
	// PermissionDenied means location may not be used.
	PermissionDenied Permission = iota
	// PermissionGranted means location may be used.
	PermissionGranted
)

// String returns the permission name.
func (p Permission) String() string {
	if p == PermissionGranted {
		return "granted"
	}

	return "denied"
}

var (
	// ErrPermissionDenied is returned when the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable is returned when no fix could be obtained.
	ErrUnavailable = errors.New("location unavailable")
)

// Provider supplies permission and one-shot coordinates.
type Provider interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentLocation(ctx context.Context) (fall.Coordinates, error)
}

// Tracker caches the last known location.
type Tracker struct {
	// provider answers location requests.
	provider Provider
	// timeout bounds a single location request.
	timeout time.Duration

	mu sync.RWMutex
	// last is the cached location.
	last fall.Location
	// denied is set once permission was refused.
	denied bool
}

// NewTracker creates a tracker with an unknown location.
func NewTracker(provider Provider, timeout time.Duration) *Tracker {
	return &Tracker{
		provider: provider,
		timeout:  timeout,
	}
}

// Snapshot returns the last known location.
func (t *Tracker) Snapshot() fall.Location {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.last
}

// Acquire asks for permission once and then for a single fix. A failed fix
// keeps the previous location.
func (t *Tracker) Acquire(ctx context.Context) error {
	t.mu.RLock()
	denied := t.denied
	t.mu.RUnlock()

	if denied {
		return ErrPermissionDenied
	}

	permission, err := t.provider.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request permission: %w", err)
	}

	if permission != PermissionGranted {
		t.mu.Lock()
		t.denied = true
		t.last = fall.Location{}
		t.mu.Unlock()

		return ErrPermissionDenied
	}

	reqCtx := ctx

	if t.timeout > 0 {
		var cancel context.CancelFunc

		reqCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	coords, err := t.provider.CurrentLocation(reqCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	t.mu.Lock()
	t.last = fall.KnownLocation(coords)
	t.mu.Unlock()

	return nil
}

// Run acquires the location now and then every interval, if interval is positive.
// Permission denial is reported once and ends the loop; monitoring continues
// without a location.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	ctx = logger.WithName(ctx, "location")

	if !t.acquireAndReport(ctx) || interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.acquireAndReport(ctx) {
				return nil
			}
		}
	}
}

// acquireAndReport logs the outcome of Acquire and reports whether to keep going.
func (t *Tracker) acquireAndReport(ctx context.Context) bool {
	err := t.Acquire(ctx)

	switch {
	case err == nil:
		loc := t.Snapshot()
		logger.InfoKV(ctx, "Location acquired", "latitude", loc.Latitude, "longitude", loc.Longitude)

		return true
	case errors.Is(err, ErrPermissionDenied):
		logger.Warn(ctx, "Location permission denied, emergencies will carry no coordinates")

		return false
	case ctx.Err() != nil:
		return false
	default:
		logger.WarnKV(ctx, "Location unavailable", "error", err)

		return true
	}
}

// Static is a Provider with fixed coordinates and permission.
type Static struct {
	// Coordinates are returned by CurrentLocation.
	Coordinates fall.Coordinates
	// Permission is returned by RequestPermission.
	Permission Permission
}

// RequestPermission returns the configured permission.
func (s Static) RequestPermission(context.Context) (Permission, error) {
	return s.Permission, nil
}

// CurrentLocation returns the configured coordinates.
func (s Static) CurrentLocation(context.Context) (fall.Coordinates, error) {
	return s.Coordinates, nil
}

// None is a Provider that grants permission but never has a fix.
type None struct{}

// RequestPermission always grants.
func (None) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

// CurrentLocation always fails.
func (None) CurrentLocation(context.Context) (fall.Coordinates, error) {
	return fall.Coordinates{}, ErrUnavailable
}
