package models

import "time"

// Coord is a WGS84 position in degrees. The field order follows the
// routing services, which take longitude first.
type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// NamedLocation is a coordinate with a display name, produced by a geocoding
// selection or by the device location.
type NamedLocation struct {
	Coordinates Coord  `json:"coordinates"`
	Name        string `json:"name"`
}

type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	LicensePlate string `json:"license_plate"`
}

// Driver is read-only reference data for one matching session.
type Driver struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CurrentLocation NamedLocation   `json:"current_location"`
	Destination     NamedLocation   `json:"destination"`
	Waypoints       []NamedLocation `json:"waypoints,omitempty"`
	Rating          float64         `json:"rating"` // 4..5
	VehicleType     string          `json:"vehicle_type"`
	Available       bool            `json:"available"`
	Vehicle         Vehicle         `json:"vehicle"`
	Updated         time.Time       `json:"updated,omitempty"`
}

// RouteResult is what a routing service returned, in meters and seconds.
type RouteResult struct {
	Geometry        []Coord `json:"geometry"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// CombinedRoute is a RouteResult converted to kilometers and minutes.
type CombinedRoute struct {
	Geometry    []Coord `json:"geometry"`
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}

type Match struct {
	Driver           Driver        `json:"driver"`
	CombinedRoute    CombinedRoute `json:"combined_route"`
	TotalDistanceKm  float64       `json:"total_distance_km"`
	TotalDurationMin float64       `json:"total_duration_min"`
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBKCredit     PaymentMethod = "bkcredit"
	PaymentBKCreditPlus PaymentMethod = "bkcreditplus"
)

type BookingRoute struct {
	DistanceMeters  float64       `json:"distance_meters"`
	DurationSeconds float64       `json:"duration_seconds"`
	Start           NamedLocation `json:"start"`
	End             NamedLocation `json:"end"`
}

// Booking is created once at confirmation and never modified.
type Booking struct {
	ID            string        `json:"id"`
	Driver        Driver        `json:"driver"`
	Route         BookingRoute  `json:"route"`
	Price         int64         `json:"price"` // VND
	PaymentMethod PaymentMethod `json:"payment_method"`
	ConfirmedAt   time.Time     `json:"confirmed_at"`
}
