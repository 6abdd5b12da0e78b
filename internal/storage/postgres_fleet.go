package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-matching/internal/models"
)

const driverColumns = `id, name, cur_lon, cur_lat, cur_name, dest_lon, dest_lat, dest_name, waypoints,
	rating, vehicle_type, available, vehicle_make, vehicle_model, license_plate, updated_at`

// PostgresFleet reads the driver snapshot from the drivers table. Rows come
// back in insertion order.
type PostgresFleet struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresFleet(ctx context.Context, dsn string) (*PostgresFleet, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresFleetFromDB(db), nil
}

func NewPostgresFleetFromDB(db *sql.DB) *PostgresFleet { return &PostgresFleet{db: db, now: time.Now} }

func (p *PostgresFleet) Close() error { return p.db.Close() }

// Migrate executes the SQL file at path.
func (p *PostgresFleet) Migrate(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("apply migration %s: %w", path, err)
	}
	return nil
}

func (p *PostgresFleet) Snapshot(ctx context.Context) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query drivers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Driver, 0)
	for rows.Next() {
		var (
			d  models.Driver
			wp []byte
		)
		if err := rows.Scan(
			&d.ID, &d.Name,
			&d.CurrentLocation.Coordinates.Lon, &d.CurrentLocation.Coordinates.Lat, &d.CurrentLocation.Name,
			&d.Destination.Coordinates.Lon, &d.Destination.Coordinates.Lat, &d.Destination.Name,
			&wp, &d.Rating, &d.VehicleType, &d.Available,
			&d.Vehicle.Make, &d.Vehicle.Model, &d.Vehicle.LicensePlate, &d.Updated,
		); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		if len(wp) > 0 {
			if err := json.Unmarshal(wp, &d.Waypoints); err != nil {
				return nil, fmt.Errorf("decode waypoints of %s: %w", d.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a driver. A replaced driver keeps its position
// in the snapshot order. A zero Updated is stamped with the current time.
func (p *PostgresFleet) Upsert(ctx context.Context, d models.Driver) error {
	if d.Updated.IsZero() {
		d.Updated = p.now()
	}
	wp, err := json.Marshal(nonNil(d.Waypoints))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO drivers (`+driverColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
	name=EXCLUDED.name, cur_lon=EXCLUDED.cur_lon, cur_lat=EXCLUDED.cur_lat, cur_name=EXCLUDED.cur_name,
	dest_lon=EXCLUDED.dest_lon, dest_lat=EXCLUDED.dest_lat, dest_name=EXCLUDED.dest_name,
	waypoints=EXCLUDED.waypoints, rating=EXCLUDED.rating, vehicle_type=EXCLUDED.vehicle_type,
	available=EXCLUDED.available, vehicle_make=EXCLUDED.vehicle_make, vehicle_model=EXCLUDED.vehicle_model,
	license_plate=EXCLUDED.license_plate, updated_at=EXCLUDED.updated_at`,
		d.ID, d.Name,
		d.CurrentLocation.Coordinates.Lon, d.CurrentLocation.Coordinates.Lat, d.CurrentLocation.Name,
		d.Destination.Coordinates.Lon, d.Destination.Coordinates.Lat, d.Destination.Name,
		wp, d.Rating, d.VehicleType, d.Available,
		d.Vehicle.Make, d.Vehicle.Model, d.Vehicle.LicensePlate, d.Updated,
	)
	if err != nil {
		return fmt.Errorf("upsert driver %s: %w", d.ID, err)
	}
	return nil
}

func nonNil(w []models.NamedLocation) []models.NamedLocation {
	if w == nil {
		return []models.NamedLocation{}
	}
	return w
}
