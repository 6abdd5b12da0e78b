package booking

import (
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/pricing"
)

type RouteSummary struct {
	DistanceKm  float64 `json:"distanceKm"`
	DurationMin float64 `json:"durationMin"`
}

type RankedMatch struct {
	Rank             int           `json:"rank"`
	Driver           models.Driver `json:"driver"`
	TotalDistanceKm  float64       `json:"totalDistanceKm"`
	TotalDurationMin float64       `json:"totalDurationMin"`
}

// View is a copy of the flow for display. ID is filled in by the owner of
// the flow.
type View struct {
	ID            string                `json:"id"`
	State         State                 `json:"state"`
	Device        *models.NamedLocation `json:"device,omitempty"`
	Pickup        *models.NamedLocation `json:"pickup,omitempty"`
	Destination   *models.NamedLocation `json:"destination,omitempty"`
	Nearby        []models.Driver       `json:"nearby"`
	DirectRoute   *RouteSummary         `json:"directRoute,omitempty"`
	RouteError    string                `json:"routeError,omitempty"`
	Matches       []RankedMatch         `json:"matches"`
	Selected      *RankedMatch          `json:"selected,omitempty"`
	Quote         *pricing.Quote        `json:"quote,omitempty"`
	PaymentMethod models.PaymentMethod  `json:"paymentMethod,omitempty"`
	CanConfirm    bool                  `json:"canConfirm"`
	Wallet        pricing.Wallet        `json:"wallet"`
	Booking       *models.Booking       `json:"booking,omitempty"`
	Zoom          float64               `json:"zoom"`
}

func copyLoc(l *models.NamedLocation) *models.NamedLocation {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (f *Flow) View() View {
	v := View{
		State:         f.state,
		Device:        copyLoc(f.device),
		Pickup:        copyLoc(f.pickup),
		Destination:   copyLoc(f.destination),
		Nearby:        append([]models.Driver{}, f.nearby...),
		RouteError:    f.routeErr,
		Matches:       make([]RankedMatch, 0, len(f.matches)),
		PaymentMethod: f.payment,
		CanConfirm:    f.CanConfirm(),
		Wallet:        f.wallet,
		Zoom:          f.sync.Zoom(),
	}
	if f.direct != nil {
		v.DirectRoute = &RouteSummary{
			DistanceKm:  models.MetersToKm(f.direct.DistanceMeters),
			DurationMin: models.SecondsToMinutes(f.direct.DurationSeconds),
		}
	}
	for i, m := range f.matches {
		v.Matches = append(v.Matches, RankedMatch{
			Rank:             i + 1,
			Driver:           m.Driver,
			TotalDistanceKm:  m.TotalDistanceKm,
			TotalDurationMin: m.TotalDurationMin,
		})
	}
	if f.selected >= 0 && f.selected < len(v.Matches) {
		sel := v.Matches[f.selected]
		v.Selected = &sel
	}
	if f.quote != nil {
		q := *f.quote
		v.Quote = &q
	}
	if f.booking != nil {
		b := *f.booking
		v.Booking = &b
	}
	return v
}
