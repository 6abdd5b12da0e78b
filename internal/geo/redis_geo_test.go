package geo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trip-matching/internal/models"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisFleet) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisFleet(client, "")
}

func TestRedisFleetSnapshotOrder(t *testing.T) {
	_, fleet := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, fleet.Upsert(ctx, driverAt("b", 105.80, 21.00)))
	require.NoError(t, fleet.Upsert(ctx, driverAt("a", 105.81, 21.01)))
	moved := driverAt("b", 105.82, 21.02)
	moved.Name = "Tran Van"
	require.NoError(t, fleet.Upsert(ctx, moved))

	snap, err := fleet.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(snap))
	assert.Equal(t, "Tran Van", snap[0].Name)
	assert.Equal(t, 105.82, snap[0].CurrentLocation.Coordinates.Lon)
}

func TestRedisFleetNear(t *testing.T) {
	mr, fleet := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, fleet.Upsert(ctx, driverAt("far", 105.900, 21.100)))
	require.NoError(t, fleet.Upsert(ctx, driverAt("near2", 105.8005, 21.0005)))
	require.NoError(t, fleet.Upsert(ctx, driverAt("near1", 105.801, 21.001)))

	got, err := fleet.Near(ctx, models.Coord{Lon: 105.800, Lat: 21.000}, 3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"near2", "near1"}, ids(got))

	none, err := fleet.Near(ctx, models.Coord{Lon: 0, Lat: 0}, 100)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.True(t, mr.Exists("driver:doc:far"))
}

func TestRedisFleetRemove(t *testing.T) {
	mr, fleet := setupMiniredis(t)
	ctx := context.Background()
	require.NoError(t, fleet.Upsert(ctx, driverAt("a", 105.80, 21.00)))
	require.NoError(t, fleet.Remove(ctx, "a"))

	snap, err := fleet.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.False(t, mr.Exists("driver:doc:a"))
}
