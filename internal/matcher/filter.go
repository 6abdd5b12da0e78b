package matcher

import (
	"context"

	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/models"
)

const (
	DefaultThresholdKm    = 3.0
	DefaultNearbyMeters   = 100.0
	DefaultTopN           = 5
	DefaultMaxConcurrency = 8
)

// FindCandidates keeps available drivers whose current location is within
// thresholdKm of start and whose destination is within thresholdKm of end.
// Both legs must pass on their own. Input order is preserved.
func FindCandidates(start, end models.Coord, drivers []models.Driver, thresholdKm float64) []models.Driver {
	out := make([]models.Driver, 0)
	for _, d := range drivers {
		if !d.Available {
			continue
		}
		if geo.DistanceMeters(start, d.CurrentLocation.Coordinates)/1000 > thresholdKm {
			continue
		}
		if geo.DistanceMeters(end, d.Destination.Coordinates)/1000 > thresholdKm {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindNearby keeps available drivers within thresholdMeters of point,
// ignoring where they are headed.
func FindNearby(point models.Coord, drivers []models.Driver, thresholdMeters float64) []models.Driver {
	out := make([]models.Driver, 0)
	for _, d := range drivers {
		if d.Available && geo.DistanceMeters(point, d.CurrentLocation.Coordinates) <= thresholdMeters {
			out = append(out, d)
		}
	}
	return out
}

// Source supplies the read-only driver snapshot for a session.
type Source interface {
	Snapshot(ctx context.Context) ([]models.Driver, error)
}

// NearSource is a Source that can narrow the snapshot around a point. The
// result must keep snapshot order and include every driver within radius.
type NearSource interface {
	Source
	Near(ctx context.Context, p models.Coord, radiusMeters float64) ([]models.Driver, error)
}

// Pool returns the drivers worth filtering for a trip starting at p, using
// the source's proximity query when it has one.
func Pool(ctx context.Context, src Source, p models.Coord, radiusMeters float64) ([]models.Driver, error) {
	if ns, ok := src.(NearSource); ok {
		return ns.Near(ctx, p, radiusMeters)
	}
	return src.Snapshot(ctx)
}

// StaticSource serves a fixed driver list.
type StaticSource []models.Driver

func (s StaticSource) Snapshot(ctx context.Context) ([]models.Driver, error) {
	out := make([]models.Driver, len(s))
	copy(out, s)
	return out, nil
}
