package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"

	"github.com/example/trip-matching/internal/config"
	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/ingest"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/observability"
	"github.com/example/trip-matching/internal/route"
	"github.com/example/trip-matching/internal/storage"
)

// buildRouter returns the configured routing client, instrumented and,
// when a TTL is set, cached.
func buildRouter(cfg config.ServerConfig) (route.Client, error) {
	var c route.Client
	switch cfg.RoutingProvider {
	case config.ProviderMapbox:
		c = route.NewMapboxClient(cfg.MapboxBaseURL, cfg.MapboxAccessToken, cfg.RouteTimeout)
	case config.ProviderOSRM:
		c = route.NewOSRMClient(cfg.OSRMURL, cfg.RouteTimeout)
	case config.ProviderGoogle:
		g, err := route.NewGoogleClient(cfg.GoogleMapsAPIKey, maps.WithHTTPClient(&http.Client{Timeout: cfg.RouteTimeout}))
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, fmt.Errorf("unknown routing provider %q", cfg.RoutingProvider)
	}
	c = route.Instrument(c, cfg.RoutingProvider)
	if cfg.RouteCacheTTL > 0 {
		c = route.NewCache(c, cfg.RouteCacheTTL)
	}
	return c, nil
}

// fleet bundles the driver source with its writer and cleanup.
type fleet struct {
	source matcher.Source
	upsert func(ctx context.Context, d models.Driver) error
	close  func() error
}

func buildFleet(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*fleet, error) {
	switch cfg.FleetSource {
	case config.FleetRedis:
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rf := geo.NewRedisFleet(rc, cfg.RedisGeoKey)
		logger.Info("fleet source redis", "addr", cfg.RedisAddr, "key", cfg.RedisGeoKey)
		return &fleet{source: rf, upsert: rf.Upsert, close: rc.Close}, nil

	case config.FleetPostgres:
		pg, err := storage.NewPostgresFleet(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx, filepath.Join("migrations", "001_create_drivers.sql")); err != nil {
				logger.Error("migration failed", "error", err)
			} else {
				logger.Info("migration applied", "file", "001_create_drivers.sql")
			}
		}
		logger.Info("fleet source postgres")
		return &fleet{source: pg, upsert: pg.Upsert, close: pg.Close}, nil
	}

	idx := geo.NewIndex()
	if cfg.FleetFile != "" {
		drivers, err := loadFleetFile(cfg.FleetFile)
		if err != nil {
			return nil, err
		}
		for _, d := range drivers {
			idx.Upsert(d)
		}
		logger.Info("fleet seeded", "file", cfg.FleetFile, "drivers", idx.Len())
	}
	observability.DriversIndexed.Set(float64(idx.Len()))
	upsert := func(ctx context.Context, d models.Driver) error {
		idx.Upsert(d)
		observability.DriversIndexed.Set(float64(idx.Len()))
		return nil
	}
	return &fleet{source: idx, upsert: upsert, close: func() error { return nil }}, nil
}

// loadFleetFile reads a JSON array of driver records.
func loadFleetFile(path string) ([]models.Driver, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	out := make([]models.Driver, 0, len(raw))
	for i, r := range raw {
		d, err := ingest.DecodeDriver(r)
		if err != nil {
			return nil, fmt.Errorf("fleet file entry %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}
