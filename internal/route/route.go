// Package route talks to driving-directions services.
package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/trip-matching/internal/models"
)

var (
	ErrTooFewWaypoints = errors.New("route: at least two waypoints required")
	ErrNoRoute         = errors.New("route: no route returned")
)

// StatusError is returned when the service answers with a status other than "Ok".
type StatusError struct {
	Provider string
	Code     string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %s", e.Provider, e.Code)
}

// Client fetches a drivable path visiting waypoints in order. Results are in
// meters and seconds; callers convert.
type Client interface {
	FetchRoute(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error)
}

func checkWaypoints(waypoints []models.Coord) error {
	if len(waypoints) < 2 {
		return ErrTooFewWaypoints
	}
	return nil
}
