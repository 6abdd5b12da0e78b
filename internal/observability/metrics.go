package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trip_matching"

var (
	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_requests_total", Help: "Routing service requests by outcome"},
		[]string{"provider", "outcome"},
	)
	RouteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "route_request_duration_seconds", Help: "Routing service latency", Buckets: prometheus.DefBuckets},
		[]string{"provider"},
	)

	MatchSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "match_searches_total", Help: "Driver searches by outcome"},
		[]string{"outcome"},
	)
	MatchLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})
	MatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_candidates",
		Help:      "Candidates passing the geographic filter per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bookings_total", Help: "Confirmed bookings"},
		[]string{"payment_method"},
	)
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_active", Help: "Open booking sessions"})
	DriversIndexed = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_indexed", Help: "Drivers held by the in-memory fleet"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
