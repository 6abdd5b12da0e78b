package booking

import (
	"errors"
	"fmt"
)

type State int

const (
	Idle State = iota
	LocationsPartial
	LocationsSet
	RouteReady
	Searching
	Matched
	DriverSelected
	PricingReview
	Confirmed
)

var stateNames = [...]string{
	Idle:             "idle",
	LocationsPartial: "locations_partial",
	LocationsSet:     "locations_set",
	RouteReady:       "route_ready",
	Searching:        "searching",
	Matched:          "matched",
	DriverSelected:   "driver_selected",
	PricingReview:    "pricing_review",
	Confirmed:        "confirmed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrInvalidTransition = errors.New("booking: invalid transition")
	// ErrStale is returned when a route or search result arrives for a
	// generation the flow has already moved past.
	ErrStale           = errors.New("booking: stale result")
	ErrNoSuchMatch     = errors.New("booking: no such match")
	ErrConfirmDisabled = errors.New("booking: confirmation disabled")
)

// TransitionError names the action a state does not allow. It matches
// ErrInvalidTransition.
type TransitionError struct {
	From   State
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking: cannot %s while %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
