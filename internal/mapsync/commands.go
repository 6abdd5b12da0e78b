// Package mapsync turns booking state into operations on a map surface.
// Producers emit Command values; a Surface applies them.
package mapsync

import (
	"context"
	"sync"

	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/models"
)

type Op string

const (
	OpAddMarker     Op = "add_marker"
	OpRemoveMarker  Op = "remove_marker"
	OpSetVisibility Op = "set_marker_visibility"
	OpAddLine       Op = "add_line"
	OpRemoveLine    Op = "remove_line"
	OpFitBounds     Op = "fit_bounds"
	OpFlyTo         Op = "fly_to"
)

// Role says what a marker stands for.
type Role string

const (
	RoleSelf        Role = "self"
	RolePickup      Role = "pickup"
	RoleDestination Role = "destination"
	RoleNearby      Role = "nearby_driver"
	RoleMatched     Role = "matched_driver"
)

// Slot names a line layer. Each slot holds at most one line.
type Slot string

const (
	SlotRoute    Slot = "route"
	SlotCombined Slot = "combined-route"
)

type LineStyle struct {
	Color     string    `json:"color"`
	Width     float64   `json:"width"`
	Opacity   float64   `json:"opacity"`
	DashArray []float64 `json:"dash_array,omitempty"`
}

type Padding struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Command is one surface operation. Only the fields relevant to Op are set.
type Command struct {
	Op       Op             `json:"op"`
	MarkerID string         `json:"marker_id,omitempty"`
	Role     Role           `json:"role,omitempty"`
	Position *models.Coord  `json:"position,omitempty"`
	Label    string         `json:"label,omitempty"`
	Hidden   bool           `json:"hidden,omitempty"`
	Slot     Slot           `json:"slot,omitempty"`
	Geometry []models.Coord `json:"geometry,omitempty"`
	Style    *LineStyle     `json:"style,omitempty"`
	Bounds   *geo.Bounds    `json:"bounds,omitempty"`
	Padding  *Padding       `json:"padding,omitempty"`
	Center   *models.Coord  `json:"center,omitempty"`
	Zoom     float64        `json:"zoom,omitempty"`
}

// Surface applies commands in order.
type Surface interface {
	Apply(ctx context.Context, cmds []Command) error
}

// Discard drops every command.
type Discard struct{}

func (Discard) Apply(ctx context.Context, cmds []Command) error { return nil }

// Recorder keeps every applied command. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	cmds []Command
}

func (r *Recorder) Apply(ctx context.Context, cmds []Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmds...)
	return nil
}

func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}
