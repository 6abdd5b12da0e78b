package geo

import (
	"math"

	"github.com/example/trip-matching/internal/models"
)

// EarthRadiusMeters is the mean radius used for every great-circle distance.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b models.Coord) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

func DistanceKm(a, b models.Coord) float64 {
	return DistanceMeters(a, b) / 1000
}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// BoundsOf returns the smallest box containing every point. ok is false for
// an empty slice.
func BoundsOf(points []models.Coord) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinLon: points[0].Lon, MinLat: points[0].Lat, MaxLon: points[0].Lon, MaxLat: points[0].Lat}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b, true
}

func (b Bounds) Extend(p models.Coord) Bounds {
	b.MinLon = math.Min(b.MinLon, p.Lon)
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLon = math.Max(b.MaxLon, p.Lon)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	return b
}

func (b Bounds) Contains(p models.Coord) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}
