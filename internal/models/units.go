package models

// All conversions between the routing units (meters, seconds) and the ride
// units (kilometers, minutes) go through this file.

func MetersToKm(m float64) float64 { return m / 1000 }

func SecondsToMinutes(s float64) float64 { return s / 60 }

func KmToMeters(km float64) float64 { return km * 1000 }

func MinutesToSeconds(min float64) float64 { return min * 60 }

// NewMatch converts a combined route into a Match. The totals are always
// copied from the converted route.
func NewMatch(d Driver, r RouteResult) Match {
	cr := CombinedRoute{
		Geometry:    r.Geometry,
		DistanceKm:  MetersToKm(r.DistanceMeters),
		DurationMin: SecondsToMinutes(r.DurationSeconds),
	}
	return Match{
		Driver:           d,
		CombinedRoute:    cr,
		TotalDistanceKm:  cr.DistanceKm,
		TotalDurationMin: cr.DurationMin,
	}
}

// BookingRouteFor expresses a match's totals back in meters and seconds.
func BookingRouteFor(m Match, start, end NamedLocation) BookingRoute {
	return BookingRoute{
		DistanceMeters:  KmToMeters(m.TotalDistanceKm),
		DurationSeconds: MinutesToSeconds(m.TotalDurationMin),
		Start:           start,
		End:             end,
	}
}
