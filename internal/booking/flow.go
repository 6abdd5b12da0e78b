// Package booking holds the rider's booking flow as a reducer. Each
// transition updates the flow and returns the map commands that bring the
// surface in line with it; applying them is the caller's job. A Flow is not
// safe for concurrent use.
package booking

import (
	"fmt"
	"time"

	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/pricing"
)

const (
	DefaultPickupName      = "Start location"
	DefaultDestinationName = "End location"
)

// Request carries the endpoints an asynchronous route or search was started
// for, stamped with the generation it must still match on completion.
type Request struct {
	Gen   uint64
	Start models.NamedLocation
	End   models.NamedLocation
}

// Confirmation is the result of a confirmed booking: the booking itself and
// the wallet after the fare was charged.
type Confirmation struct {
	Booking models.Booking
	Wallet  pricing.Wallet
}

type Flow struct {
	state  State
	gen    uint64
	sync   *mapsync.Sync
	wallet pricing.Wallet

	device      *models.NamedLocation
	pickup      *models.NamedLocation
	destination *models.NamedLocation
	nearby      []models.Driver
	direct      *models.RouteResult
	routeErr    string
	matches     []models.Match
	selected    int
	quote       *pricing.Quote
	payment     models.PaymentMethod
	booking     *models.Booking
}

func NewFlow(wallet pricing.Wallet, cfg mapsync.Config) *Flow {
	return &Flow{sync: mapsync.New(cfg), wallet: wallet, selected: -1}
}

func (f *Flow) State() State { return f.state }

// Generation changes whenever the endpoints change or the flow is cleared.
func (f *Flow) Generation() uint64 { return f.gen }

func (f *Flow) Wallet() pricing.Wallet { return f.wallet }

func (f *Flow) Pickup() (models.NamedLocation, bool) {
	if f.pickup == nil {
		return models.NamedLocation{}, false
	}
	return *f.pickup, true
}

func (f *Flow) Destination() (models.NamedLocation, bool) {
	if f.destination == nil {
		return models.NamedLocation{}, false
	}
	return *f.destination, true
}

func (f *Flow) Matches() []models.Match {
	out := make([]models.Match, len(f.matches))
	copy(out, f.matches)
	return out
}

func (f *Flow) deny(action string) error {
	return &TransitionError{From: f.state, Action: action}
}

func (f *Flow) check(gen uint64, want ...State) error {
	if gen != f.gen {
		return ErrStale
	}
	for _, s := range want {
		if f.state == s {
			return nil
		}
	}
	return ErrStale
}

func (f *Flow) in(states ...State) bool {
	for _, s := range states {
		if f.state == s {
			return true
		}
	}
	return false
}

// SetDeviceLocation records where the rider is. A located device gets the
// self marker and the view flies to it; a fallback position only becomes the
// device location.
func (f *Flow) SetDeviceLocation(loc models.NamedLocation, located bool) []mapsync.Command {
	l := loc
	f.device = &l
	if !located {
		return nil
	}
	cmds := f.sync.SetLocation(mapsync.RoleSelf, loc)
	return append(cmds, f.sync.FocusDevice(loc)...)
}

// SetPickup places the pickup and the available drivers around it.
func (f *Flow) SetPickup(loc models.NamedLocation, nearby []models.Driver) ([]mapsync.Command, error) {
	if f.state == Confirmed {
		return nil, f.deny("set pickup")
	}
	if loc.Name == "" {
		loc.Name = DefaultPickupName
	}
	f.pickup = &loc
	f.nearby = append([]models.Driver(nil), nearby...)
	cmds := f.resetDownstream()
	cmds = append(cmds, f.sync.SetLocation(mapsync.RolePickup, loc)...)
	cmds = append(cmds, f.sync.SetNearby(nearby)...)
	if f.destination == nil {
		cmds = append(cmds, f.sync.FocusPickup(loc)...)
	}
	f.settleLocations()
	return cmds, nil
}

func (f *Flow) SetDestination(loc models.NamedLocation) ([]mapsync.Command, error) {
	if f.state == Confirmed {
		return nil, f.deny("set destination")
	}
	if loc.Name == "" {
		loc.Name = DefaultDestinationName
	}
	f.destination = &loc
	cmds := f.resetDownstream()
	cmds = append(cmds, f.sync.SetLocation(mapsync.RoleDestination, loc)...)
	f.settleLocations()
	return cmds, nil
}

// resetDownstream drops everything computed from the previous endpoints and
// moves to a new generation so in-flight results for them are discarded.
func (f *Flow) resetDownstream() []mapsync.Command {
	f.gen++
	f.direct = nil
	f.routeErr = ""
	f.clearSearch()
	cmds := f.sync.ClearMatches()
	cmds = append(cmds, f.sync.RemoveLine(mapsync.SlotCombined)...)
	return append(cmds, f.sync.RemoveLine(mapsync.SlotRoute)...)
}

func (f *Flow) clearSearch() {
	f.matches = nil
	f.selected = -1
	f.quote = nil
	f.payment = ""
}

func (f *Flow) settleLocations() {
	switch {
	case f.pickup != nil && f.destination != nil:
		f.state = LocationsSet
	case f.pickup != nil || f.destination != nil:
		f.state = LocationsPartial
	default:
		f.state = Idle
	}
}

// BeginRoute starts a direct route request. It is also the retry after a
// failed request, and may refresh an existing route.
func (f *Flow) BeginRoute() (Request, error) {
	if !f.in(LocationsSet, RouteReady) {
		return Request{}, f.deny("request route")
	}
	return f.request(), nil
}

func (f *Flow) request() Request {
	return Request{Gen: f.gen, Start: *f.pickup, End: *f.destination}
}

func (f *Flow) ApplyRoute(gen uint64, r models.RouteResult) ([]mapsync.Command, error) {
	if err := f.check(gen, LocationsSet, RouteReady); err != nil {
		return nil, err
	}
	f.direct = &r
	f.routeErr = ""
	f.state = RouteReady
	return f.sync.ShowDirectRoute(r), nil
}

// RouteFailed records a direct route failure. The flow stays where it was.
func (f *Flow) RouteFailed(gen uint64, err error) error {
	if e := f.check(gen, LocationsSet, RouteReady); e != nil {
		return e
	}
	f.routeErr = err.Error()
	return nil
}

// BeginSearch discards any previous matches and their map artifacts and
// moves to Searching.
func (f *Flow) BeginSearch() (Request, []mapsync.Command, error) {
	if !f.in(RouteReady, Matched, DriverSelected) {
		return Request{}, nil, f.deny("search")
	}
	f.clearSearch()
	cmds := f.sync.ClearMatches()
	cmds = append(cmds, f.sync.RemoveLine(mapsync.SlotCombined)...)
	f.state = Searching
	return f.request(), cmds, nil
}

// ApplyMatches completes a search. An empty list is a valid result.
func (f *Flow) ApplyMatches(gen uint64, matches []models.Match) ([]mapsync.Command, error) {
	if err := f.check(gen, Searching); err != nil {
		return nil, err
	}
	f.matches = append([]models.Match(nil), matches...)
	f.state = Matched
	return f.sync.SetMatches(matches), nil
}

// AbortSearch returns an unfinished search to RouteReady.
func (f *Flow) AbortSearch(gen uint64) error {
	if err := f.check(gen, Searching); err != nil {
		return err
	}
	f.state = RouteReady
	return nil
}

// SelectMatch shows the combined route of the match at index. Another match
// may be selected while one already is.
func (f *Flow) SelectMatch(index int) ([]mapsync.Command, error) {
	if !f.in(Matched, DriverSelected) {
		return nil, f.deny("select a match")
	}
	if index < 0 || index >= len(f.matches) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchMatch, index, len(f.matches))
	}
	f.selected = index
	f.state = DriverSelected
	return f.sync.ShowCombinedRoute(f.matches[index]), nil
}

// Book prices the selected match. A payment method must be chosen before
// confirmation.
func (f *Flow) Book() (pricing.Quote, error) {
	if f.state != DriverSelected {
		return pricing.Quote{}, f.deny("book")
	}
	q := pricing.QuoteFor(f.matches[f.selected].TotalDistanceKm)
	f.quote = &q
	f.payment = ""
	f.state = PricingReview
	return q, nil
}

// Back leaves the pricing review for the selected driver.
func (f *Flow) Back() error {
	if f.state != PricingReview {
		return f.deny("go back")
	}
	f.quote = nil
	f.payment = ""
	f.state = DriverSelected
	return nil
}

// ChoosePayment records the method. An unaffordable method is accepted but
// leaves confirmation disabled.
func (f *Flow) ChoosePayment(m models.PaymentMethod) error {
	if f.state != PricingReview {
		return f.deny("choose payment")
	}
	if err := pricing.ValidateMethod(m); err != nil {
		return err
	}
	f.payment = m
	return nil
}

func (f *Flow) confirmable() error {
	if f.state != PricingReview {
		return f.deny("confirm")
	}
	if err := pricing.CheckPayment(f.payment, f.quote.PriceVND, f.wallet); err != nil {
		return fmt.Errorf("%w: %w", ErrConfirmDisabled, err)
	}
	return nil
}

func (f *Flow) CanConfirm() bool { return f.confirmable() == nil }

// Confirm creates the booking and charges the wallet.
func (f *Flow) Confirm(now time.Time, id string) (Confirmation, error) {
	if err := f.confirmable(); err != nil {
		return Confirmation{}, err
	}
	w, err := f.wallet.Debit(f.payment, f.quote.PriceVND)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %w", ErrConfirmDisabled, err)
	}
	m := f.matches[f.selected]
	b := models.Booking{
		ID:            id,
		Driver:        m.Driver,
		Route:         models.BookingRouteFor(m, *f.pickup, *f.destination),
		Price:         f.quote.PriceVND,
		PaymentMethod: f.payment,
		ConfirmedAt:   now,
	}
	f.wallet = w
	f.booking = &b
	f.state = Confirmed
	return Confirmation{Booking: b, Wallet: w}, nil
}

// Clear returns to Idle from any state and releases every search marker and
// line. The device location and wallet are kept.
func (f *Flow) Clear() []mapsync.Command {
	f.gen++
	f.pickup = nil
	f.destination = nil
	f.nearby = nil
	f.direct = nil
	f.routeErr = ""
	f.clearSearch()
	f.booking = nil
	f.state = Idle
	return f.sync.Reset()
}

// Zoom records a zoom change on the surface.
func (f *Flow) Zoom(z float64) []mapsync.Command { return f.sync.SetZoom(z) }

// Replay rebuilds the current map on a surface that has just attached.
func (f *Flow) Replay() []mapsync.Command { return f.sync.Replay() }
