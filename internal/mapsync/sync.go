package mapsync

import (
	"strconv"

	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/models"
)

type Config struct {
	MaxMarkerZoom float64 // driver markers are hidden above this zoom
	InitialZoom   float64
	RoutePadding  Padding
	FocusZoom     float64 // device position and selected driver
	PickupZoom    float64 // pickup chosen before a destination
	Home          models.Coord
	HomeZoom      float64
}

func DefaultConfig() Config {
	return Config{
		MaxMarkerZoom: 17,
		InitialZoom:   13,
		RoutePadding:  Padding{Top: 200, Bottom: 200, Left: 50, Right: 50},
		FocusZoom:     15,
		PickupZoom:    14,
		Home:          geo.DefaultCenter,
		HomeZoom:      13,
	}
}

var (
	DirectRouteStyle   = LineStyle{Color: "#D64545", Width: 4, Opacity: 0.75}
	CombinedRouteStyle = LineStyle{Color: "#4A90E2", Width: 5, Opacity: 0.8, DashArray: []float64{2, 2}}
)

// Sync tracks what is on the surface and emits the commands that move it to
// a new state. Every method is idempotent with respect to the surface: a
// role's old markers and a slot's old line are removed before new ones are
// added, and removing something absent emits nothing.
type Sync struct {
	cfg     Config
	zoom    float64
	markers map[Role][]Command
	lines   map[Slot]Command
	view    *Command // last fly_to or fit_bounds
}

func New(cfg Config) *Sync {
	return &Sync{cfg: cfg, zoom: cfg.InitialZoom, markers: make(map[Role][]Command), lines: make(map[Slot]Command)}
}

func (s *Sync) Zoom() float64 { return s.zoom }

func (s *Sync) HasLine(slot Slot) bool {
	_, ok := s.lines[slot]
	return ok
}

// MarkerIDs lists the markers currently placed for role.
func (s *Sync) MarkerIDs(role Role) []string {
	out := make([]string, 0, len(s.markers[role]))
	for _, c := range s.markers[role] {
		out = append(out, c.MarkerID)
	}
	return out
}

var replayRoles = []Role{RoleSelf, RolePickup, RoleDestination, RoleNearby, RoleMatched}

// Replay returns the commands that rebuild the tracked state on an empty
// surface: every marker with its current visibility, both line slots, then
// the last viewport change.
func (s *Sync) Replay() []Command {
	var cmds []Command
	for _, role := range replayRoles {
		for _, c := range s.markers[role] {
			c.Hidden = zoomGated(role) && s.hidden()
			cmds = append(cmds, c)
		}
	}
	for _, slot := range []Slot{SlotRoute, SlotCombined} {
		if c, ok := s.lines[slot]; ok {
			cmds = append(cmds, c)
		}
	}
	if s.view != nil {
		cmds = append(cmds, *s.view)
	}
	return cmds
}

func (s *Sync) hidden() bool { return s.zoom > s.cfg.MaxMarkerZoom }

func zoomGated(r Role) bool { return r == RoleNearby || r == RoleMatched }

func (s *Sync) removeRole(role Role) []Command {
	var cmds []Command
	for _, c := range s.markers[role] {
		cmds = append(cmds, Command{Op: OpRemoveMarker, MarkerID: c.MarkerID, Role: role})
	}
	delete(s.markers, role)
	return cmds
}

func (s *Sync) addMarker(role Role, id string, pos models.Coord, label string) Command {
	p := pos
	c := Command{
		Op:       OpAddMarker,
		MarkerID: id,
		Role:     role,
		Position: &p,
		Label:    label,
		Hidden:   zoomGated(role) && s.hidden(),
	}
	s.markers[role] = append(s.markers[role], c)
	return c
}

// SetLocation places the single marker for a location role (self, pickup,
// destination), replacing any previous one.
func (s *Sync) SetLocation(role Role, loc models.NamedLocation) []Command {
	cmds := s.removeRole(role)
	return append(cmds, s.addMarker(role, string(role), loc.Coordinates, loc.Name))
}

func (s *Sync) ClearLocation(role Role) []Command { return s.removeRole(role) }

func (s *Sync) SetNearby(drivers []models.Driver) []Command {
	cmds := s.removeRole(RoleNearby)
	for _, d := range drivers {
		cmds = append(cmds, s.addMarker(RoleNearby, "nearby:"+d.ID, d.CurrentLocation.Coordinates, ""))
	}
	return cmds
}

func (s *Sync) ClearNearby() []Command { return s.removeRole(RoleNearby) }

// SetMatches places one marker per match at the driver's location, labelled
// with its 1-based rank.
func (s *Sync) SetMatches(matches []models.Match) []Command {
	cmds := s.removeRole(RoleMatched)
	for i, m := range matches {
		cmds = append(cmds, s.addMarker(RoleMatched, "matched:"+m.Driver.ID, m.Driver.CurrentLocation.Coordinates, strconv.Itoa(i+1)))
	}
	return cmds
}

func (s *Sync) ClearMatches() []Command { return s.removeRole(RoleMatched) }

func (s *Sync) RemoveLine(slot Slot) []Command {
	if !s.HasLine(slot) {
		return nil
	}
	delete(s.lines, slot)
	return []Command{{Op: OpRemoveLine, Slot: slot}}
}

func (s *Sync) replaceLine(slot Slot, geometry []models.Coord, style LineStyle) []Command {
	cmds := s.RemoveLine(slot)
	st := style
	c := Command{Op: OpAddLine, Slot: slot, Geometry: geometry, Style: &st}
	s.lines[slot] = c
	return append(cmds, c)
}

// ShowDirectRoute draws the pickup -> destination preview and frames it.
func (s *Sync) ShowDirectRoute(r models.RouteResult) []Command {
	cmds := s.replaceLine(SlotRoute, r.Geometry, DirectRouteStyle)
	if b, ok := geo.BoundsOf(r.Geometry); ok {
		pad := s.cfg.RoutePadding
		fit := Command{Op: OpFitBounds, Bounds: &b, Padding: &pad}
		s.view = &fit
		cmds = append(cmds, fit)
	}
	return cmds
}

// ShowCombinedRoute focuses the selected driver and draws its combined route.
func (s *Sync) ShowCombinedRoute(m models.Match) []Command {
	cmds := s.FlyTo(m.Driver.CurrentLocation.Coordinates, s.cfg.FocusZoom)
	return append(cmds, s.replaceLine(SlotCombined, m.CombinedRoute.Geometry, CombinedRouteStyle)...)
}

func (s *Sync) FlyTo(center models.Coord, zoom float64) []Command {
	c := center
	fly := Command{Op: OpFlyTo, Center: &c, Zoom: zoom}
	s.view = &fly
	return []Command{fly}
}

// FocusDevice flies to a device position at the focus zoom.
func (s *Sync) FocusDevice(loc models.NamedLocation) []Command {
	return s.FlyTo(loc.Coordinates, s.cfg.FocusZoom)
}

// FocusPickup flies to a pickup chosen before any destination.
func (s *Sync) FocusPickup(loc models.NamedLocation) []Command {
	return s.FlyTo(loc.Coordinates, s.cfg.PickupZoom)
}

// SetZoom records the surface zoom. When it crosses MaxMarkerZoom the driver
// markers are hidden or shown in place; they are never removed or moved.
func (s *Sync) SetZoom(z float64) []Command {
	before := s.hidden()
	s.zoom = z
	after := s.hidden()
	if before == after {
		return nil
	}
	var cmds []Command
	for _, role := range []Role{RoleNearby, RoleMatched} {
		for _, c := range s.markers[role] {
			cmds = append(cmds, Command{Op: OpSetVisibility, MarkerID: c.MarkerID, Role: role, Hidden: after})
		}
	}
	return cmds
}

// Reset removes every search artifact and returns the view home. The self
// marker stays since it tracks the device, not the search.
func (s *Sync) Reset() []Command {
	var cmds []Command
	for _, role := range []Role{RolePickup, RoleDestination, RoleNearby, RoleMatched} {
		cmds = append(cmds, s.removeRole(role)...)
	}
	cmds = append(cmds, s.RemoveLine(SlotRoute)...)
	cmds = append(cmds, s.RemoveLine(SlotCombined)...)
	return append(cmds, s.FlyTo(s.cfg.Home, s.cfg.HomeZoom)...)
}
