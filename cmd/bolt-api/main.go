// README: Entry point; loads config, wires services, resumes active rides and serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tejith7/project-bolt/internal/config"
	"github.com/tejith7/project-bolt/internal/events"
	httptransport "github.com/tejith7/project-bolt/internal/http"
	"github.com/tejith7/project-bolt/internal/http/handlers"
	"github.com/tejith7/project-bolt/internal/infra"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/maps"
	"github.com/tejith7/project-bolt/internal/modules/dispatch"
	"github.com/tejith7/project-bolt/internal/modules/history"
	"github.com/tejith7/project-bolt/internal/modules/identity"
	"github.com/tejith7/project-bolt/internal/modules/matching"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/modules/ride"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.Log.Level)
	if err := run(cfg, lg); err != nil {
		lg.Error("bolt-api stopped", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, lg logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := infra.ApplyMigrations(ctx, dbPool, "migrations"); err != nil {
		return err
	}

	profileSvc := identity.NewService(identity.NewPGStore(dbPool))
	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Pricing, lg)
	historySvc := history.NewService(history.NewPGStore(dbPool), lg)
	rideStore := ride.NewPGStore(dbPool)

	deps := ride.EngineDeps{
		Store:    rideStore,
		Pricing:  pricingSvc,
		History:  historySvc,
		Timeline: cfg.Timeline,
		Log:      lg,
	}
	syncDeps := dispatch.Deps{Rides: rideStore, Profiles: profileSvc, Config: cfg.Dispatch, Log: lg}

	// Redis and RabbitMQ are optional: without them observe reads hit Postgres,
	// auto-match uses the simulated roster and no events are published.
	var geoStore matching.GeoStore
	if redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr); err != nil {
		lg.Warn("redis unavailable, running without snapshot cache and driver GEO set", "err", err)
	} else {
		defer redisClient.Close()
		cache := dispatch.NewRedisCache(redisClient, cfg.Dispatch.CacheTTL)
		deps.Cache = cache
		syncDeps.Cache = cache
		geoStore = matching.NewStore(redisClient)
	}
	if cfg.RabbitMQ.URL != "" {
		pub, err := events.NewPublisher(ctx, cfg.RabbitMQ.URL, lg)
		if err != nil {
			lg.Warn("rabbitmq unavailable, ride events will not be published", "err", err)
		} else {
			defer pub.Close()
			deps.Events = pub
		}
	}

	matchingSvc := matching.NewService(geoStore, profileSvc, cfg.Matching, lg)
	deps.Drivers = matchingSvc

	engine := ride.NewEngine(deps)
	syncDeps.Engine = engine
	synchronizer := dispatch.NewSynchronizer(syncDeps)

	resumed, err := engine.Resume(ctx)
	if err != nil {
		return err
	}
	lg.Info("engine ready", "resumed_rides", resumed)

	var geocoder handlers.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		geocoder = g
	}

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Rides:          engine,
		Observer:       synchronizer,
		Dispatch:       synchronizer,
		Availability:   matchingSvc,
		Pricing:        pricingSvc,
		History:        historySvc,
		Profiles:       profileSvc,
		Geocoder:       geocoder,
		Verifier:       verifier,
		Health:         func(ctx context.Context) error { return dbPool.Ping(ctx) },
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            lg,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		lg.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", "err", err)
	}
	return engine.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Auth.Mode == "jwt" {
		return infra.NewJWTAuth(cfg.Auth.JWTSecret)
	}
	if cfg.Firebase.ProjectID == "" {
		return nil, errors.New("BOLT_FIREBASE_PROJECT_ID is required when BOLT_AUTH_MODE=firebase")
	}
	return infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
}
