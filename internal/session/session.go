// Package session runs booking flows against the routing service, the
// driver fleet and a map surface. A Session serializes every transition of
// its flow together with the application of the commands it produced;
// network calls happen between transitions with the lock released, and
// their results are applied only if the flow has not moved on.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-matching/internal/booking"
	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/observability"
)

var (
	ErrNotFound = errors.New("session: not found")
	// ErrDirectRoute wraps a failed pickup -> destination route request.
	ErrDirectRoute = errors.New("session: direct route failed")
)

// Matcher ranks drivers for a trip.
type Matcher interface {
	Match(ctx context.Context, start, end models.Coord, drivers []models.Driver) ([]models.Match, error)
}

type Session struct {
	id      string
	deps    *Deps
	log     *slog.Logger
	surface mapsync.Surface

	mu   sync.Mutex
	flow *booking.Flow
}

func (s *Session) ID() string { return s.id }

// apply hands cmds to the surface. Callers hold s.mu.
func (s *Session) apply(ctx context.Context, cmds []mapsync.Command) {
	if len(cmds) == 0 {
		return
	}
	if err := s.surface.Apply(ctx, cmds); err != nil {
		s.log.Warn("map surface apply failed", "commands", len(cmds), "error", err)
	}
}

func (s *Session) viewLocked() booking.View {
	v := s.flow.View()
	v.ID = s.id
	return v
}

func (s *Session) View() booking.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Attach calls join with the commands that rebuild the current map from
// scratch. No other map update for the session is applied until join
// returns, so a new surface sees the replay followed by every later change.
func (s *Session) Attach(join func(replay []mapsync.Command) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return join(s.flow.Replay())
}

// do runs one transition and applies its commands under the lock.
func (s *Session) do(ctx context.Context, fn func(f *booking.Flow) ([]mapsync.Command, error)) (booking.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds, err := fn(s.flow)
	s.apply(ctx, cmds)
	return s.viewLocked(), err
}

// LocateDevice asks l for the device position, falling back to the default
// center. It never fails.
func (s *Session) LocateDevice(ctx context.Context, l geo.Locator) booking.View {
	loc, ok := geo.CurrentLocation(ctx, l, s.deps.LocateTimeout, s.deps.MapConfig.Home)
	if !ok {
		s.log.Info("device location unavailable, using default", "lon", loc.Coordinates.Lon, "lat", loc.Coordinates.Lat)
	}
	v, _ := s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.SetDeviceLocation(loc, ok), nil
	})
	return v
}

// SetPickup places the pickup with the drivers available around it and, once
// both endpoints are known, requests the direct route. A failed route is
// reported in the view, not as an error.
func (s *Session) SetPickup(ctx context.Context, loc models.NamedLocation) (booking.View, error) {
	nearby := s.nearby(ctx, loc.Coordinates)
	v, err := s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.SetPickup(loc, nearby)
	})
	if err != nil {
		return v, err
	}
	return s.autoRoute(ctx, v)
}

func (s *Session) SetDestination(ctx context.Context, loc models.NamedLocation) (booking.View, error) {
	v, err := s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.SetDestination(loc)
	})
	if err != nil {
		return v, err
	}
	return s.autoRoute(ctx, v)
}

func (s *Session) autoRoute(ctx context.Context, v booking.View) (booking.View, error) {
	if v.State != booking.LocationsSet {
		return v, nil
	}
	rv, err := s.Route(ctx)
	switch {
	case err == nil:
		return rv, nil
	case errors.Is(err, ErrDirectRoute), errors.Is(err, booking.ErrStale):
		return s.View(), nil
	}
	return rv, err
}

func (s *Session) nearby(ctx context.Context, p models.Coord) []models.Driver {
	pool, err := matcher.Pool(ctx, s.deps.Fleet, p, s.deps.NearbyRadiusMeters)
	if err != nil {
		s.log.Warn("fleet lookup failed", "error", err)
		return nil
	}
	return matcher.FindNearby(p, pool, s.deps.NearbyRadiusMeters)
}

// Route requests the direct pickup -> destination route. It is also the
// retry after a failure.
func (s *Session) Route(ctx context.Context) (booking.View, error) {
	s.mu.Lock()
	req, err := s.flow.BeginRoute()
	if err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}
	s.mu.Unlock()

	r, rerr := s.deps.Router.FetchRoute(ctx, []models.Coord{req.Start.Coordinates, req.End.Coordinates})

	s.mu.Lock()
	defer s.mu.Unlock()
	if rerr != nil {
		if err := s.flow.RouteFailed(req.Gen, rerr); err != nil {
			s.log.Info("stale route failure discarded", "generation", req.Gen)
			return s.viewLocked(), err
		}
		s.log.Warn("direct route failed", "error", rerr)
		return s.viewLocked(), fmt.Errorf("%w: %w", ErrDirectRoute, rerr)
	}
	cmds, err := s.flow.ApplyRoute(req.Gen, r)
	if err != nil {
		s.log.Info("stale route discarded", "generation", req.Gen)
		return s.viewLocked(), err
	}
	s.apply(ctx, cmds)
	return s.viewLocked(), nil
}

// Search finds and ranks drivers for the current endpoints. Cancelling ctx
// aborts the search and returns the flow to RouteReady.
func (s *Session) Search(ctx context.Context) (booking.View, error) {
	s.mu.Lock()
	req, cmds, err := s.flow.BeginSearch()
	if err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}
	s.apply(ctx, cmds)
	s.mu.Unlock()

	matches, err := s.runSearch(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if aerr := s.flow.AbortSearch(req.Gen); aerr == nil {
			observability.MatchSearchesTotal.WithLabelValues("error").Inc()
		}
		s.log.Warn("search aborted", "generation", req.Gen, "error", err)
		return s.viewLocked(), err
	}
	cmds, err = s.flow.ApplyMatches(req.Gen, matches)
	if err != nil {
		observability.MatchSearchesTotal.WithLabelValues("stale").Inc()
		s.log.Info("stale search discarded", "generation", req.Gen, "matches", len(matches))
		return s.viewLocked(), err
	}
	s.apply(ctx, cmds)
	outcome := "matched"
	if len(matches) == 0 {
		outcome = "empty"
	}
	observability.MatchSearchesTotal.WithLabelValues(outcome).Inc()
	return s.viewLocked(), nil
}

func (s *Session) runSearch(ctx context.Context, req booking.Request) ([]models.Match, error) {
	drivers, err := matcher.Pool(ctx, s.deps.Fleet, req.Start.Coordinates, models.KmToMeters(s.deps.ThresholdKm))
	if err != nil {
		return nil, fmt.Errorf("load fleet: %w", err)
	}
	return s.deps.Matcher.Match(ctx, req.Start.Coordinates, req.End.Coordinates, drivers)
}

func (s *Session) Select(ctx context.Context, index int) (booking.View, error) {
	return s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.SelectMatch(index)
	})
}

func (s *Session) Book(ctx context.Context) (booking.View, error) {
	return s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		_, err := f.Book()
		return nil, err
	})
}

func (s *Session) Back(ctx context.Context) (booking.View, error) {
	return s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return nil, f.Back()
	})
}

func (s *Session) ChoosePayment(ctx context.Context, m models.PaymentMethod) (booking.View, error) {
	return s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return nil, f.ChoosePayment(m)
	})
}

// Confirm books the selected driver and hands the booking to the sink. A
// sink failure is logged; the booking stands.
func (s *Session) Confirm(ctx context.Context) (booking.View, error) {
	s.mu.Lock()
	c, err := s.flow.Confirm(s.deps.Now(), s.deps.NewID())
	v := s.viewLocked()
	s.mu.Unlock()
	if err != nil {
		return v, err
	}

	observability.BookingsTotal.WithLabelValues(string(c.Booking.PaymentMethod)).Inc()
	s.log.Info("booking confirmed",
		"booking_id", c.Booking.ID,
		"driver_id", c.Booking.Driver.ID,
		"price_vnd", c.Booking.Price,
		"payment_method", c.Booking.PaymentMethod,
	)
	if s.deps.Sink != nil {
		if err := s.deps.Sink.BookingConfirmed(ctx, s.id, c.Booking); err != nil {
			s.log.Error("booking sink failed", "booking_id", c.Booking.ID, "error", err)
		}
	}
	return v, nil
}

func (s *Session) Clear(ctx context.Context) booking.View {
	v, _ := s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.Clear(), nil
	})
	return v
}

// Zoom records a zoom change reported by the surface.
func (s *Session) Zoom(ctx context.Context, z float64) booking.View {
	v, _ := s.do(ctx, func(f *booking.Flow) ([]mapsync.Command, error) {
		return f.Zoom(z), nil
	})
	return v
}

func nowUTC() time.Time { return time.Now().UTC() }
