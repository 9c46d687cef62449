// README: Entry point; loads config, wires stores, services and event sinks, serves HTTP until signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"transfer/internal/clock"
	"transfer/internal/config"
	httptransport "transfer/internal/http"
	"transfer/internal/infra"
	"transfer/internal/logger"
	"transfer/internal/maps"
	"transfer/internal/metrics"
	"transfer/internal/modules/availability"
	"transfer/internal/modules/driver"
	"transfer/internal/modules/events"
	"transfer/internal/modules/location"
	"transfer/internal/modules/ride"
	"transfer/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("load config", "error", err)
	}
	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("transfer", reg)

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("TRANSFER_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		log.Fatal("firebase init", "error", err)
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.Fatal("firebase auth", "error", err)
	}

	bus := events.NewBroadcaster(events.Options{
		MaxAttempts:  cfg.Events.MaxAttempts,
		RetryBackoff: cfg.Events.RetryBackoff,
		QueueSize:    cfg.Events.QueueSize,
	}, log.With("component", "events"), m)

	var (
		rideStore  ride.Store
		drivers    driver.Directory
		rideLister availability.RideLister
		locCache   location.Cache
		locTrail   location.Trail
		rideReader location.RideReader
	)
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("using in-memory storage; nothing survives a restart")
		mem := ride.NewMemStore()
		rideStore, rideLister, rideReader = mem, mem, mem
		seeded := make([]driver.Driver, 0, len(cfg.Storage.SeedDrivers))
		for _, s := range cfg.Storage.SeedDrivers {
			seeded = append(seeded, driver.Driver{ID: types.ID(s.ID), Name: s.Name, Verified: true, Status: driver.StatusAvailable})
		}
		if len(seeded) == 0 {
			log.Warn("memory driver directory is empty; set TRANSFER_SEED_DRIVERS to dispatch rides")
		}
		drivers = driver.NewMemStore(seeded...)
		locCache = location.NewMemCache()
		locTrail = location.NewMemTrail()
	default:
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal("postgres", "error", err)
		}
		defer db.Close()
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal("redis", "error", err)
		}
		defer rdb.Close()

		pg := ride.NewPgStore(db)
		rideStore, rideLister, rideReader = pg, pg, pg
		drivers = driver.NewStore(db)
		locCache = location.NewRedisCache(rdb, cfg.Location.Retention)
		locTrail = location.NewPgTrail(db)
	}

	var geocoder ride.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey, "")
		if err != nil {
			log.Fatal("maps client", "error", err)
		}
		geocoder = g
	}

	if cfg.Firebase.DatabaseURL != "" {
		mirror, err := location.NewFirebaseMirror(ctx, app)
		if err != nil {
			log.Fatal("firebase database", "error", err)
		}
		if _, err := bus.SubscribeAll(events.ChannelAdmin, mirror); err != nil {
			log.Fatal("attach position mirror", "error", err)
		}
	}

	if cfg.AMQP.URL != "" {
		mq, err := infra.NewAMQP(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, 5)
		if err != nil {
			log.Fatal("rabbitmq", "error", err)
		}
		defer mq.Close()
		if _, err := bus.SubscribeAll(events.ChannelAdmin, events.NewAMQPSink(mq.Channel, cfg.AMQP.Exchange)); err != nil {
			log.Fatal("attach amqp sink", "error", err)
		}
		log.Info("publishing ride events", "exchange", cfg.AMQP.Exchange)
	}

	rides := ride.NewService(ride.Deps{
		Store:    rideStore,
		Drivers:  drivers,
		Events:   bus,
		Clock:    clock.Real{},
		Geocoder: geocoder,
		Log:      log,
		Metrics:  m,
	}, ride.Options{
		MaxRetries:         cfg.Dispatch.MaxRetries,
		LeadTime:           cfg.Dispatch.LeadTime,
		AdminStartOverride: cfg.Dispatch.AdminStartOverride,
	})
	loc := location.NewService(location.Deps{
		Rides:   rideReader,
		Cache:   locCache,
		Trail:   locTrail,
		Events:  bus,
		Clock:   clock.Real{},
		Log:     log.With("component", "location"),
		Metrics: m,
	}, location.Options{
		StaleAfter:      cfg.Location.StaleAfter,
		AverageSpeedKmh: cfg.Location.AverageSpeedKmh,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Rides:    rides,
		Pool:     availability.NewPool(rideLister, drivers),
		Location: loc,
		Events:   bus,
		Verifier: verifier,
		Log:      log.With("component", "http"),
		Gatherer: reg,
	})
	if err := server.Run(ctx, 15*time.Second); err != nil {
		log.Error("http server", "error", err)
	}
	// Subscriber workers stop before the deferred closes tear down the
	// AMQP channel and stores they deliver to.
	bus.Close()
	log.Info("shutdown complete")
}
