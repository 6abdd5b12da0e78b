package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/trip-matching/internal/geo"
	"github.com/example/trip-matching/internal/mapsync"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/pricing"
)

const (
	ProviderMapbox = "mapbox"
	ProviderOSRM   = "osrm"
	ProviderGoogle = "google"

	FleetMemory   = "memory"
	FleetRedis    = "redis"
	FleetPostgres = "postgres"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup. Routing credentials
// are the exception: the chosen provider's must be present.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RoutingProvider   string
	MapboxAccessToken string
	MapboxBaseURL     string
	OSRMURL           string
	GoogleMapsAPIKey  string
	RouteTimeout      time.Duration
	RouteCacheTTL     time.Duration

	MatchThresholdKm float64
	MatchTopN        int
	MatchConcurrency int
	NearbyRadiusM    float64

	MarkerMaxZoom float64
	DefaultCenter models.Coord
	LocateTimeout time.Duration

	WalletBKCredit     int64
	WalletBKCreditPlus int64

	FleetSource string
	FleetFile   string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	PGDSN         string
	RunMigrations bool

	KafkaBrokers      []string
	KafkaDriverTopic  string
	KafkaBookingTopic string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RoutingProvider:    ProviderMapbox,
		MapboxBaseURL:      "https://api.mapbox.com",
		RouteTimeout:       5 * time.Second,
		RouteCacheTTL:      2 * time.Minute,
		MatchThresholdKm:   matcher.DefaultThresholdKm,
		MatchTopN:          matcher.DefaultTopN,
		MatchConcurrency:   matcher.DefaultMaxConcurrency,
		NearbyRadiusM:      matcher.DefaultNearbyMeters,
		MarkerMaxZoom:      17,
		DefaultCenter:      geo.DefaultCenter,
		LocateTimeout:      5 * time.Second,
		WalletBKCredit:     50000,
		WalletBKCreditPlus: 100000,
		FleetSource:        FleetMemory,
		RedisGeoKey:        "drivers_geo",
		KafkaDriverTopic:   "driver-locations",
		KafkaBookingTopic:  "bookings",
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setStringFromEnv(&cfg.RoutingProvider, "ROUTING_PROVIDER")
	cfg.RoutingProvider = strings.ToLower(cfg.RoutingProvider)
	cfg.MapboxAccessToken = strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN"))
	setStringFromEnv(&cfg.MapboxBaseURL, "MAPBOX_BASE_URL")
	cfg.OSRMURL = strings.TrimSpace(os.Getenv("OSRM_URL"))
	cfg.GoogleMapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	setDurationFromEnv(&cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	setFloatFromEnv(&cfg.MatchThresholdKm, "MATCH_THRESHOLD_KM", &errs)
	setIntFromEnv(&cfg.MatchTopN, "MATCH_TOP_N", &errs)
	setIntFromEnv(&cfg.MatchConcurrency, "MATCH_CONCURRENCY", &errs)
	setFloatFromEnv(&cfg.NearbyRadiusM, "NEARBY_RADIUS_M", &errs)

	setFloatFromEnv(&cfg.MarkerMaxZoom, "MARKER_MAX_ZOOM", &errs)
	setFloatFromEnv(&cfg.DefaultCenter.Lon, "DEFAULT_CENTER_LON", &errs)
	setFloatFromEnv(&cfg.DefaultCenter.Lat, "DEFAULT_CENTER_LAT", &errs)
	setDurationFromEnv(&cfg.LocateTimeout, "LOCATE_TIMEOUT", &errs)

	setInt64FromEnv(&cfg.WalletBKCredit, "WALLET_BKCREDIT", &errs)
	setInt64FromEnv(&cfg.WalletBKCreditPlus, "WALLET_BKCREDITPLUS", &errs)

	setStringFromEnv(&cfg.FleetSource, "FLEET_SOURCE")
	cfg.FleetSource = strings.ToLower(cfg.FleetSource)
	cfg.FleetFile = strings.TrimSpace(os.Getenv("FLEET_FILE"))

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaDriverTopic, "KAFKA_DRIVER_TOPIC")
	setStringFromEnv(&cfg.KafkaBookingTopic, "KAFKA_BOOKING_TOPIC")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c ServerConfig) validate() []error {
	var errs []error
	switch c.RoutingProvider {
	case ProviderMapbox:
		if c.MapboxAccessToken == "" {
			errs = append(errs, errors.New("MAPBOX_ACCESS_TOKEN is required for the mapbox provider"))
		}
	case ProviderOSRM:
		if c.OSRMURL == "" {
			errs = append(errs, errors.New("OSRM_URL is required for the osrm provider"))
		}
	case ProviderGoogle:
		if c.GoogleMapsAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required for the google provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTING_PROVIDER %q", c.RoutingProvider))
	}

	if c.MatchTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_TOP_N must be > 0"))
	}
	if c.MatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_CONCURRENCY must be > 0"))
	}
	if c.MatchThresholdKm <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD_KM must be > 0"))
	}
	if c.NearbyRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("NEARBY_RADIUS_M must be > 0"))
	}

	switch c.FleetSource {
	case FleetMemory:
	case FleetRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for FLEET_SOURCE=redis"))
		}
	case FleetPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required for FLEET_SOURCE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FLEET_SOURCE %q", c.FleetSource))
	}
	return errs
}

// MapConfig is the map behaviour derived from the configuration.
func (c ServerConfig) MapConfig() mapsync.Config {
	m := mapsync.DefaultConfig()
	m.MaxMarkerZoom = c.MarkerMaxZoom
	m.Home = c.DefaultCenter
	return m
}

func (c ServerConfig) Wallet() pricing.Wallet {
	return pricing.NewWallet(c.WalletBKCredit, c.WalletBKCreditPlus)
}

// ConsumerConfig is the fleet ingest process configuration.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	Attempts      int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "driver-locations",
		KafkaGroup:   "trip-matching-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "drivers_geo",
		Attempts:     3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_DRIVER_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setIntFromEnv(&cfg.Attempts, "REDIS_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS must name at least one broker"))
	}
	if cfg.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
