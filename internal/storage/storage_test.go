package storage

import (
	"context"
	"database/sql/driver"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trip-matching/internal/models"
)

var columns = []string{
	"id", "name", "cur_lon", "cur_lat", "cur_name", "dest_lon", "dest_lat", "dest_name", "waypoints",
	"rating", "vehicle_type", "available", "vehicle_make", "vehicle_model", "license_plate", "updated_at",
}

func TestPostgresFleetSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	fleet := NewPostgresFleetFromDB(db)

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(columns).
		AddRow("d1", "An", 105.801, 21.001, "Hoan Kiem", 105.819, 21.009, "Ba Dinh",
			[]byte(`[{"coordinates":{"lon":105.81,"lat":21.005},"name":"stop"}]`),
			4.8, "car", true, "Toyota", "Vios", "29A-12345", at).
		AddRow("d2", "Binh", 105.9, 21.1, "", 105.9, 21.1, "", []byte(`[]`),
			4.2, "bike", false, "Honda", "Wave", "29B-1", at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM drivers ORDER BY seq")).WillReturnRows(rows)

	got, err := fleet.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, 105.801, got[0].CurrentLocation.Coordinates.Lon)
	assert.Equal(t, "Ba Dinh", got[0].Destination.Name)
	require.Len(t, got[0].Waypoints, 1)
	assert.Equal(t, "stop", got[0].Waypoints[0].Name)
	assert.Equal(t, "29A-12345", got[0].Vehicle.LicensePlate)
	assert.False(t, got[1].Available)
	assert.Empty(t, got[1].Waypoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFleetSnapshotBadWaypoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("d1", "", 0.0, 0.0, "", 0.0, 0.0, "", []byte(`{`), 0.0, "", true, "", "", "", time.Now())
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err = NewPostgresFleetFromDB(db).Snapshot(context.Background())
	assert.ErrorContains(t, err, "waypoints of d1")
}

func TestPostgresFleetUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := models.Driver{
		ID:              "d1",
		CurrentLocation: models.NamedLocation{Coordinates: models.Coord{Lon: 105.8, Lat: 21}},
		Destination:     models.NamedLocation{Coordinates: models.Coord{Lon: 105.82, Lat: 21.01}},
		Available:       true,
	}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs("d1", "", 105.8, 21.0, "", 105.82, 21.01, "", []byte(`[]`), 0.0, "", true, "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewPostgresFleetFromDB(db).Upsert(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFleetUpsertStampsUpdated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stamp := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	f := NewPostgresFleetFromDB(db)
	f.now = func() time.Time { return stamp }
	args := func(updated time.Time) []driver.Value {
		return []driver.Value{"d1", "", 0.0, 0.0, "", 0.0, 0.0, "", []byte(`[]`), 0.0, "", false, "", "", "", updated}
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs(args(stamp)...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, f.Upsert(context.Background(), models.Driver{ID: "d1"}))

	given := stamp.Add(-time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs(args(given)...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, f.Upsert(context.Background(), models.Driver{ID: "d1", Updated: given}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFleetMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	path := filepath.Join(t.TempDir(), "001.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE drivers (id TEXT)"), 0o600))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE drivers")).WillReturnResult(sqlmock.NewResult(0, 0))

	fleet := NewPostgresFleetFromDB(db)
	require.NoError(t, fleet.Migrate(context.Background(), path))
	assert.Error(t, fleet.Migrate(context.Background(), filepath.Join(t.TempDir(), "missing.sql")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.BookingConfirmed(ctx, "s1", models.Booking{ID: "b1", Price: 85000}))
	require.NoError(t, s.BookingConfirmed(ctx, "s1", models.Booking{ID: "b2"}))
	require.NoError(t, s.BookingConfirmed(ctx, "s1", models.Booking{ID: "b1", Price: 90000}))

	b, ok := s.Get("b1")
	require.True(t, ok)
	assert.Equal(t, int64(90000), b.Price)
	_, ok = s.Get("nope")
	assert.False(t, ok)

	list := s.ForSession("s1")
	require.Len(t, list, 2)
	assert.Equal(t, "b2", list[1].ID)
	assert.Empty(t, s.ForSession("s2"))
}
