package route

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/trip-matching/internal/models"
)

type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleClient uses the Google Directions API. Google only returns encoded
// polylines, so the overview polyline is decoded into coordinates here and
// callers still receive structured geometry.
type GoogleClient struct {
	api directionsAPI
}

func NewGoogleClient(apiKey string, opts ...maps.ClientOption) (*GoogleClient, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{api: c}, nil
}

func latLng(c models.Coord) string { return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon) }

func (g *GoogleClient) FetchRoute(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	if err := checkWaypoints(waypoints); err != nil {
		return models.RouteResult{}, err
	}
	req := &maps.DirectionsRequest{
		Origin:      latLng(waypoints[0]),
		Destination: latLng(waypoints[len(waypoints)-1]),
		Mode:        maps.TravelModeDriving,
	}
	for _, w := range waypoints[1 : len(waypoints)-1] {
		req.Waypoints = append(req.Waypoints, latLng(w))
	}
	routes, _, err := g.api.Directions(ctx, req)
	if err != nil {
		return models.RouteResult{}, fmt.Errorf("google directions: %w", err)
	}
	if len(routes) == 0 {
		return models.RouteResult{}, ErrNoRoute
	}
	r := routes[0]
	var out models.RouteResult
	for _, leg := range r.Legs {
		out.DistanceMeters += float64(leg.Distance.Meters)
		out.DurationSeconds += leg.Duration.Seconds()
	}
	pts, err := r.OverviewPolyline.Decode()
	if err != nil {
		return models.RouteResult{}, fmt.Errorf("google polyline: %w", err)
	}
	out.Geometry = make([]models.Coord, len(pts))
	for i, p := range pts {
		out.Geometry[i] = models.Coord{Lon: p.Lng, Lat: p.Lat}
	}
	return out, nil
}
