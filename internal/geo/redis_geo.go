package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-matching/internal/models"
)

// RedisFleet keeps the driver fleet in Redis: positions in a GEO set, the
// full record as JSON, and first-insertion order in a sorted set.
type RedisFleet struct {
	client *redis.Client
	key    string
}

func NewRedisFleet(client *redis.Client, key string) *RedisFleet {
	if key == "" {
		key = "drivers_geo"
	}
	return &RedisFleet{client: client, key: key}
}

func (r *RedisFleet) orderKey() string { return r.key + ":order" }
func (r *RedisFleet) seqKey() string   { return r.key + ":seq" }
func docKey(id string) string          { return "driver:doc:" + id }

func (r *RedisFleet) Upsert(ctx context.Context, d models.Driver) error {
	if d.Updated.IsZero() {
		d.Updated = time.Now()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode driver %s: %w", d.ID, err)
	}
	c := d.CurrentLocation.Coordinates
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: d.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.ID, err)
	}
	if err := r.client.Set(ctx, docKey(d.ID), b, 0).Err(); err != nil {
		return fmt.Errorf("store driver %s: %w", d.ID, err)
	}
	if err := r.client.ZScore(ctx, r.orderKey(), d.ID).Err(); err == redis.Nil {
		seq, err := r.client.Incr(ctx, r.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("driver seq: %w", err)
		}
		if err := r.client.ZAddNX(ctx, r.orderKey(), redis.Z{Score: float64(seq), Member: d.ID}).Err(); err != nil {
			return fmt.Errorf("driver order %s: %w", d.ID, err)
		}
	} else if err != nil {
		return fmt.Errorf("driver order %s: %w", d.ID, err)
	}
	return nil
}

func (r *RedisFleet) Remove(ctx context.Context, id string) error {
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		return err
	}
	if err := r.client.ZRem(ctx, r.orderKey(), id).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, docKey(id)).Err()
}

func (r *RedisFleet) Snapshot(ctx context.Context) ([]models.Driver, error) {
	order, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("driver order: %w", err)
	}
	return r.load(ctx, order)
}

// Near queries GEORADIUS with a little slack, since Redis measures on a
// slightly different sphere. Callers filter exactly afterwards.
func (r *RedisFleet) Near(ctx context.Context, p models.Coord, radiusMeters float64) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, p.Lon, p.Lat, &redis.GeoRadiusQuery{Radius: radiusMeters*1.01 + 1, Unit: "m"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	if len(res) == 0 {
		return []models.Driver{}, nil
	}
	hit := make(map[string]struct{}, len(res))
	for _, g := range res {
		hit[g.Name] = struct{}{}
	}
	order, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("driver order: %w", err)
	}
	ids := make([]string, 0, len(hit))
	for _, id := range order {
		if _, ok := hit[id]; ok {
			ids = append(ids, id)
		}
	}
	return r.load(ctx, ids)
}

func (r *RedisFleet) load(ctx context.Context, ids []string) ([]models.Driver, error) {
	out := make([]models.Driver, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var d models.Driver
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("decode driver %s: %w", ids[i], err)
		}
		out = append(out, d)
	}
	return out, nil
}
