package route

import (
	"context"
	"errors"
	"time"

	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/observability"
)

type instrumented struct {
	next     Client
	provider string
}

// Instrument records request counts and latency for next under provider.
func Instrument(next Client, provider string) Client {
	return &instrumented{next: next, provider: provider}
}

func (i *instrumented) FetchRoute(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	start := time.Now()
	r, err := i.next.FetchRoute(ctx, waypoints)
	observability.RouteRequestDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	observability.RouteRequestsTotal.WithLabelValues(i.provider, outcome(err)).Inc()
	return r, err
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
