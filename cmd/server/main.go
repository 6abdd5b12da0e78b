package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/trip-matching/internal/config"
	"github.com/example/trip-matching/internal/dispatch"
	httpapi "github.com/example/trip-matching/internal/http"
	"github.com/example/trip-matching/internal/ingest"
	"github.com/example/trip-matching/internal/logging"
	"github.com/example/trip-matching/internal/matcher"
	"github.com/example/trip-matching/internal/session"
	"github.com/example/trip-matching/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := buildRouter(cfg)
	if err != nil {
		logger.Error("routing client", "error", err)
		os.Exit(1)
	}
	fl, err := buildFleet(ctx, cfg, logger)
	if err != nil {
		logger.Error("fleet source", "error", err)
		os.Exit(1)
	}
	defer fl.close()

	ws := dispatch.NewWSRegistry(logger)
	store := storage.NewMemoryStore()
	sinks := session.MultiSink{store, ws}

	var publisher httpapi.DriverPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaDriverTopic, cfg.KafkaBookingTopic)
		defer kp.Close()
		sinks = append(sinks, kp)
		publisher = kp
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers)
	}

	mgr := session.NewManager(session.Deps{
		Router: router,
		Matcher: &matcher.Service{
			Router:         router,
			ThresholdKm:    cfg.MatchThresholdKm,
			TopN:           cfg.MatchTopN,
			MaxConcurrency: cfg.MatchConcurrency,
			Logger:         logging.Component(logger, "matcher"),
		},
		Fleet:              fl.source,
		ThresholdKm:        cfg.MatchThresholdKm,
		NearbyRadiusMeters: cfg.NearbyRadiusM,
		LocateTimeout:      cfg.LocateTimeout,
		MapConfig:          cfg.MapConfig(),
		Wallet:             cfg.Wallet(),
		Sink:               sinks,
		Surfaces:           ws.Surface,
		Logger:             logger,
	})

	api := httpapi.NewServer(httpapi.Options{
		Sessions:      mgr,
		Fleet:         fl.source,
		UpsertDriver:  fl.upsert,
		Publisher:     publisher,
		Bookings:      store,
		WS:            ws,
		NearbyRadiusM: cfg.NearbyRadiusM,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("trip-matching listening", "addr", cfg.HTTPAddr, "provider", cfg.RoutingProvider, "fleet", cfg.FleetSource)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("trip-matching stopped")
}
