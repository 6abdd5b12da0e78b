package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/example/trip-matching/internal/models"
)

// maxPrecision is the finest geohash level bucketed by the index (~150 m cells).
const maxPrecision = 7

// metersPerDegree is the length of one degree of arc on the sphere.
const metersPerDegree = EarthRadiusMeters * math.Pi / 180

// Index is an in-memory driver fleet. Drivers keep the order in which they
// were first inserted, and each one is bucketed by its current location at
// every geohash precision from 1 to maxPrecision.
type Index struct {
	mu      sync.RWMutex
	seq     uint64
	drivers map[string]entry
	cells   [maxPrecision + 1]map[string]map[string]struct{}
}

type entry struct {
	d    models.Driver
	seq  uint64
	hash string
}

func NewIndex() *Index {
	g := &Index{drivers: make(map[string]entry)}
	for p := 1; p <= maxPrecision; p++ {
		g.cells[p] = make(map[string]map[string]struct{})
	}
	return g
}

func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d.Updated.IsZero() {
		d.Updated = time.Now()
	}
	e, ok := g.drivers[d.ID]
	if ok {
		g.unbucket(d.ID, e.hash)
	} else {
		g.seq++
		e.seq = g.seq
	}
	e.d = d
	e.hash = geohash.EncodeWithPrecision(d.CurrentLocation.Coordinates.Lat, d.CurrentLocation.Coordinates.Lon, maxPrecision)
	g.drivers[d.ID] = e
	for p := 1; p <= maxPrecision; p++ {
		cell := e.hash[:p]
		ids, ok := g.cells[p][cell]
		if !ok {
			ids = make(map[string]struct{})
			g.cells[p][cell] = ids
		}
		ids[d.ID] = struct{}{}
	}
}

func (g *Index) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.drivers[id]
	if !ok {
		return
	}
	g.unbucket(id, e.hash)
	delete(g.drivers, id)
}

func (g *Index) unbucket(id, hash string) {
	for p := 1; p <= maxPrecision; p++ {
		cell := hash[:p]
		if ids, ok := g.cells[p][cell]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(g.cells[p], cell)
			}
		}
	}
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.drivers)
}

// Snapshot returns every driver in insertion order.
func (g *Index) Snapshot(ctx context.Context) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	es := make([]entry, 0, len(g.drivers))
	for _, e := range g.drivers {
		es = append(es, e)
	}
	return ordered(es), nil
}

// Near returns drivers whose current location lies within radiusMeters of p,
// in insertion order.
func (g *Index) Near(ctx context.Context, p models.Coord, radiusMeters float64) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var es []entry
	keep := func(e entry) {
		if DistanceMeters(p, e.d.CurrentLocation.Coordinates) <= radiusMeters {
			es = append(es, e)
		}
	}
	prec := precisionFor(p, radiusMeters)
	if prec == 0 {
		for _, e := range g.drivers {
			keep(e)
		}
		return ordered(es), nil
	}
	center := geohash.EncodeWithPrecision(p.Lat, p.Lon, uint(prec))
	for _, cell := range append(geohash.Neighbors(center), center) {
		for id := range g.cells[prec][cell] {
			keep(g.drivers[id])
		}
	}
	return ordered(es), nil
}

// precisionFor picks the finest precision whose cells are at least twice the
// radius in both directions around p, so the 3x3 block of cells around p
// covers the whole circle. Zero means no precision is coarse enough.
func precisionFor(p models.Coord, radiusMeters float64) int {
	if math.Abs(p.Lat) > 80 {
		return 0
	}
	for prec := maxPrecision; prec >= 1; prec-- {
		box := geohash.BoundingBox(geohash.EncodeWithPrecision(p.Lat, p.Lon, uint(prec)))
		height := (box.MaxLat - box.MinLat) * metersPerDegree
		edge := math.Min(90, math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))+(box.MaxLat-box.MinLat))
		width := (box.MaxLng - box.MinLng) * metersPerDegree * math.Cos(edge*math.Pi/180)
		if math.Min(height, width) >= 2*radiusMeters {
			return prec
		}
	}
	return 0
}

func ordered(es []entry) []models.Driver {
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]models.Driver, len(es))
	for i, e := range es {
		out[i] = e.d
	}
	return out
}
