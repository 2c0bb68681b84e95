package weather

import (
	"context"
	"time"
)

// LocatorOptions mirrors the geolocation request a device makes.
type LocatorOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// DefaultLocatorOptions asks for a high-accuracy fix within 20s, accepting a
// cached position at most 1s old.
func DefaultLocatorOptions() LocatorOptions {
	return LocatorOptions{HighAccuracy: true, Timeout: 20 * time.Second, MaxAge: time.Second}
}

type Position struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}

type Locator interface {
	Locate(ctx context.Context, opts LocatorOptions) (Position, error)
}

// StaticLocator always reports the same coordinates, for a fixed kiosk.
type StaticLocator struct {
	Latitude  float64
	Longitude float64
}

func (s StaticLocator) Locate(ctx context.Context, _ LocatorOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position{Latitude: s.Latitude, Longitude: s.Longitude, At: time.Now().UTC()}, nil
}
