package geo

import (
	"context"
	"errors"
	"time"

	"github.com/example/trip-matching/internal/models"
)

// DefaultCenter is central Hanoi.
var DefaultCenter = models.Coord{Lon: 105.8342, Lat: 21.0285}

const (
	DeviceLocationName  = "Your location"
	DefaultLocationName = "Default location"
)

var ErrNoDevice = errors.New("geo: device location unavailable")

// Locator is a one-shot device position source.
type Locator interface {
	Locate(ctx context.Context) (models.Coord, error)
}

// StaticLocator reports a position the client already knows. A nil value
// behaves like a device without location support.
type StaticLocator struct {
	Position *models.Coord
}

func (s StaticLocator) Locate(ctx context.Context) (models.Coord, error) {
	if s.Position == nil {
		return models.Coord{}, ErrNoDevice
	}
	return *s.Position, nil
}

// CurrentLocation asks l for a position within timeout and falls back to
// fallback when it fails, times out, or l is nil. The bool reports whether
// the device answered.
func CurrentLocation(ctx context.Context, l Locator, timeout time.Duration, fallback models.Coord) (models.NamedLocation, bool) {
	if l == nil {
		return models.NamedLocation{Coordinates: fallback, Name: DefaultLocationName}, false
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		c   models.Coord
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.Locate(ctx)
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		if r.err == nil {
			return models.NamedLocation{Coordinates: r.c, Name: DeviceLocationName}, true
		}
	case <-ctx.Done():
	}
	return models.NamedLocation{Coordinates: fallback, Name: DefaultLocationName}, false
}
