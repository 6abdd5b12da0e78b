package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/trip-matching/internal/models"
)

var ErrInvalidDriver = errors.New("ingest: invalid driver record")

// DecodeDriver parses a driver record and checks the fields matching relies on.
func DecodeDriver(b []byte) (models.Driver, error) {
	var d models.Driver
	if err := json.Unmarshal(b, &d); err != nil {
		return models.Driver{}, fmt.Errorf("%w: %w", ErrInvalidDriver, err)
	}
	return d, ValidateDriver(d)
}

func ValidateDriver(d models.Driver) error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDriver)
	}
	for name, c := range map[string]models.Coord{
		"current_location": d.CurrentLocation.Coordinates,
		"destination":      d.Destination.Coordinates,
	} {
		if c.Lon < -180 || c.Lon > 180 || c.Lat < -90 || c.Lat > 90 {
			return fmt.Errorf("%w: %s out of range", ErrInvalidDriver, name)
		}
	}
	return nil
}
