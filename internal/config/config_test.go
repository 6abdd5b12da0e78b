package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/models"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("MAPBOX_ACCESS_TOKEN", "pk.test")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ProviderMapbox, cfg.RoutingProvider)
	assert.Equal(t, "https://api.mapbox.com", cfg.MapboxBaseURL)
	assert.Equal(t, 5*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 3.0, cfg.MatchThresholdKm)
	assert.Equal(t, 5, cfg.MatchTopN)
	assert.Equal(t, 100.0, cfg.NearbyRadiusM)
	assert.Equal(t, geo.DefaultCenter, cfg.DefaultCenter)
	assert.Equal(t, FleetMemory, cfg.FleetSource)
	assert.Equal(t, "bookings", cfg.KafkaBookingTopic)
	assert.Empty(t, cfg.KafkaBrokers)

	w := cfg.Wallet()
	assert.Equal(t, int64(50000), w.Balance(models.PaymentBKCredit))
	assert.Equal(t, int64(100000), w.Balance(models.PaymentBKCreditPlus))
	assert.Equal(t, 17.0, cfg.MapConfig().MaxMarkerZoom)
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("ROUTING_PROVIDER", "OSRM")
	t.Setenv("OSRM_URL", "http://osrm:5000")
	t.Setenv("MATCH_TOP_N", "3")
	t.Setenv("MARKER_MAX_ZOOM", "16")
	t.Setenv("DEFAULT_CENTER_LON", "106.7")
	t.Setenv("DEFAULT_CENTER_LAT", "10.77")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("FLEET_SOURCE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("WALLET_BKCREDIT", "10")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderOSRM, cfg.RoutingProvider)
	assert.Equal(t, 3, cfg.MatchTopN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	m := cfg.MapConfig()
	assert.Equal(t, 16.0, m.MaxMarkerZoom)
	assert.Equal(t, models.Coord{Lon: 106.7, Lat: 10.77}, m.Home)
	assert.Equal(t, int64(10), cfg.Wallet().Balance(models.PaymentBKCredit))
}

func TestMissingCredentialIsFatal(t *testing.T) {
	for provider, want := range map[string]string{
		"mapbox": "MAPBOX_ACCESS_TOKEN",
		"osrm":   "OSRM_URL",
		"google": "GOOGLE_MAPS_API_KEY",
	} {
		t.Run(provider, func(t *testing.T) {
			t.Setenv("MAPBOX_ACCESS_TOKEN", "")
			t.Setenv("OSRM_URL", "")
			t.Setenv("GOOGLE_MAPS_API_KEY", "")
			t.Setenv("ROUTING_PROVIDER", provider)
			_, err := LoadServerConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("ROUTING_PROVIDER", "here")
	t.Setenv("MATCH_TOP_N", "0")
	t.Setenv("ROUTE_TIMEOUT", "soon")
	t.Setenv("FLEET_SOURCE", "postgres")

	_, err := LoadServerConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown ROUTING_PROVIDER "here"`)
	assert.Contains(t, msg, "MATCH_TOP_N must be > 0")
	assert.Contains(t, msg, "invalid ROUTE_TIMEOUT")
	assert.Contains(t, msg, "PG_DSN is required")
}

func TestLoadConsumerConfig(t *testing.T) {
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)
	assert.Equal(t, "driver-locations", cfg.KafkaTopic)
	assert.Equal(t, 3, cfg.Attempts)

	t.Setenv("REDIS_ATTEMPTS", "0")
	_, err = LoadConsumerConfig()
	assert.ErrorContains(t, err, "REDIS_ATTEMPTS")
}
