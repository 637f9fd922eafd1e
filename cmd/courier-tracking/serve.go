package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/99minutos/courier-tracking/internal/api"
	"github.com/99minutos/courier-tracking/internal/api/handler"
	"github.com/99minutos/courier-tracking/internal/api/middleware"
	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/service"
	"github.com/99minutos/courier-tracking/internal/infrastructure/backend"
	mongodb "github.com/99minutos/courier-tracking/internal/infrastructure/db/mongo"
	redisdb "github.com/99minutos/courier-tracking/internal/infrastructure/db/redis"
	"github.com/99minutos/courier-tracking/internal/infrastructure/device"
	"github.com/99minutos/courier-tracking/internal/infrastructure/geocoding"
	"github.com/99minutos/courier-tracking/internal/infrastructure/mapsurface"
	"github.com/99minutos/courier-tracking/internal/infrastructure/queue"
	"github.com/99minutos/courier-tracking/internal/infrastructure/routing"
	"github.com/99minutos/courier-tracking/internal/pkg/config"
	"github.com/99minutos/courier-tracking/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking API, the tracking store and the sample workers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "courier-tracking",
	})

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
		AppName:  "courier-tracking/" + version,
	})
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		Timeout:    cfg.Redis.Timeout,
		ClientName: "courier-tracking",
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	// --- Engine ---
	feed := device.NewFeedWatcher(device.Config{
		AccuracyLimit: cfg.Geolocation.AccuracyLimit,
		Retention:     cfg.Geolocation.Retention,
	}, log)
	hub := mapsurface.NewHub(log)

	var tokens backend.TokenSource = middleware.NewServiceToken(cfg.JWT.Secret, cfg.JWT.ServiceSubject, cfg.JWT.ServiceTokenTTL)
	if cfg.Backend.Token != "" {
		tokens = backend.StaticToken(cfg.Backend.Token)
	}

	resolver := service.NewAddressResolver(
		geocoding.NewNominatim(geocoding.Config{
			BaseURL:      cfg.Geocoding.BaseURL,
			UserAgent:    cfg.Geocoding.UserAgent,
			CountryCodes: cfg.Geocoding.CountryCodes,
			Timeout:      cfg.Geocoding.Timeout,
		}),
		redisdb.NewGeocodeCache(rdb, cfg.Redis.CacheTTL),
		cfg.Geocoding.Timeout,
		log,
	)
	routes := service.NewRouteProvider(
		routing.NewOSRM(routing.Config{
			BaseURL: cfg.Routing.BaseURL,
			Profile: cfg.Routing.Profile,
			Timeout: cfg.Routing.Timeout,
		}),
		cfg.Routing.Timeout,
		log,
	)

	tracker := service.NewTracker(service.TrackerDeps{
		Repo:    mongodb.NewTrackingRepository(db),
		Orders:  mongodb.NewOrderDirectory(db),
		Watcher: feed,
		Feed:    feed,
		Backend: backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Tokens:  tokens,
			Timeout: cfg.Backend.Timeout,
		}),
		Surface:  hub,
		Resolver: resolver,
		Routes:   routes,
	}, service.TrackerConfig{
		Session: service.SessionConfig{
			Policy: domain.SamplePolicy{
				HighAccuracy: cfg.Geolocation.HighAccuracy,
				Timeout:      cfg.Geolocation.Timeout,
				MaxSampleAge: cfg.Geolocation.MaxSampleAge,
			},
			FallbackAge: cfg.Geolocation.FallbackAge,
			Sync: service.SyncConfig{
				Threshold:   cfg.Sync.Threshold,
				RatePerSec:  cfg.Sync.RatePerSec,
				Burst:       cfg.Sync.Burst,
				PushTimeout: cfg.Sync.PushTimeout,
			},
		},
		BackendTimeout: cfg.Backend.Timeout,
	}, log)

	dispatcher := queue.NewDispatcher(cfg.Dispatcher.Workers, tracker, log)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Tracking:   tracker,
		Sessions:   service.NewSessionService(mongodb.NewSessionRepository(db), log),
		Dispatcher: dispatcher,
		Maps:       hub,
		Checks: map[string]handler.DependencyCheck{
			"mongodb": handler.MongoCheck(db),
			"redis":   handler.RedisCheck(rdb),
		},
		JWTSecret: cfg.JWT.Secret,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)

	dispatcher.Start(gctx)
	g.Go(func() error {
		dispatcher.Wait()
		return nil
	})
	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// Sessions first so live map streams end with dispose.
		tracker.Shutdown()
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
