// Command assistant-server answers aircraft situational questions over HTTP.
//
// It loads the reference snapshot (airports, runways, frequencies, navaids,
// waypoints, checklists), polls live traffic around a configurable center,
// follows one flight on request and streams updates over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/airspace-assistant/internal/airspace"
	"github.com/unklstewy/airspace-assistant/internal/db"
	"github.com/unklstewy/airspace-assistant/internal/logging"
	"github.com/unklstewy/airspace-assistant/internal/metrics"
	"github.com/unklstewy/airspace-assistant/internal/server"
	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/checklist"
	"github.com/unklstewy/airspace-assistant/pkg/config"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/flightaware"
	"github.com/unklstewy/airspace-assistant/pkg/query"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
	"github.com/unklstewy/airspace-assistant/pkg/weather"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	port := flag.String("port", "", "Override the configured HTTP port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	logging.LogBuildInfo(logger, "assistant-server")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("assistant-server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("✓ assistant-server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	collector, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	index := reference.NewIndex(collector.SetSnapshot)

	// Reference data
	loader := &referenceLoader{
		dbConfig: cfg.Database,
		cfg:      cfg.Reference,
		index:    index,
		logger:   logger.With("component", "reference"),
	}
	if cfg.Reference.Source == config.SourceDatabase {
		database, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			// The snapshot file can still serve
			logger.Warn("database unavailable, using snapshot file", "error", err)
		} else {
			loader.database = database
			defer func() { loader.conn().Close() }()
		}
	}
	if err := loader.load(ctx); err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}
	logger.Info("✓ Reference data ready", "source", cfg.Reference.Source)

	// Live traffic
	source, ok := cfg.ADSB.PrimarySource()
	if !ok {
		return errors.New("no ADS-B source enabled")
	}
	adsbClient := adsb.NewAirplanesLiveClient(source.BaseURL,
		time.Duration(source.RateLimitSeconds*float64(time.Second)))
	defer adsbClient.Close()
	logger.Info("✓ Using ADS-B source", "name", source.Name, "rate_limit_seconds", source.RateLimitSeconds)

	retry := adsb.DefaultRetryConfig()
	retry.MaxRetries = cfg.ADSB.MaxRetries
	retry.Logger = logger.With("component", "adsb")

	// External providers
	var weatherProvider weather.Provider
	if cfg.Weather.APIKey != "" {
		owm := weather.OpenWeatherMapConfig{
			BaseURL:           cfg.Weather.BaseURL,
			APIKey:            cfg.Weather.APIKey,
			Timeout:           cfg.Weather.Timeout(),
			RequestsPerMinute: cfg.Weather.RequestsPerMinute,
		}
		if cfg.Weather.GeocoderBaseURL != "" {
			owm.Geocoder = weather.NewNominatim(cfg.Weather.GeocoderBaseURL, cfg.Weather.UserAgent, cfg.Weather.Timeout())
		}
		weatherProvider = weather.NewCachedProvider(weather.NewOpenWeatherMap(owm),
			cfg.Weather.CacheSize, cfg.Weather.CacheTTL())
		logger.Info("✓ Weather provider enabled", "base_url", cfg.Weather.BaseURL)
	} else {
		logger.Warn("weather disabled: no OpenWeatherMap API key")
	}

	metarProvider := weather.NewCachedMETAR(weather.NewAviationAPI(cfg.METAR.BaseURL, cfg.METAR.Timeout()),
		cfg.Weather.CacheSize, cfg.METAR.CacheTTL())

	checklists := checklist.NewFileProvider(cfg.Checklist.Directory, cfg.Checklist.DefaultModel,
		func() checklist.Catalogue { return index.Current() })

	var flights airspace.FlightInfo
	if cfg.FlightAware.Enabled && cfg.FlightAware.APIKey != "" {
		flights = flightaware.NewClient(flightaware.Config{
			APIKey:          cfg.FlightAware.APIKey,
			RequestsPerHour: cfg.FlightAware.RequestsPerHour,
			BaseURL:         cfg.FlightAware.BaseURL,
		})
		logger.Info("✓ FlightAware enrichment enabled", "requests_per_hour", cfg.FlightAware.RequestsPerHour)
	}

	// Fan-out
	hub := server.NewHub(logger.With("component", "websocket"))
	defer hub.Close()

	sinks := []airspace.Sink{hub}
	flightSinks := []airspace.FlightSink{hub}
	if cfg.Messaging.Enabled {
		nats, err := airspace.ConnectNATS(cfg.Messaging.NATSURL, cfg.Messaging.Subject, logger.With("component", "nats"))
		if err != nil {
			logger.Warn("NATS publishing disabled", "error", err)
		} else {
			defer nats.Close()
			sinks = append(sinks, nats)
			flightSinks = append(flightSinks, nats)
			logger.Info("✓ Publishing to NATS", "url", cfg.Messaging.NATSURL, "subject", cfg.Messaging.Subject)
		}
	}

	store := airspace.NewTrafficStore()
	center := coordinates.Geographic{Latitude: cfg.Airspace.Latitude, Longitude: cfg.Airspace.Longitude}

	worker, err := airspace.NewAirspaceWorker(airspace.WorkerConfig{
		Source:    adsbClient,
		Reference: index,
		Store:     store,
		Center:    center,
		RadiusNM:  cfg.Airspace.RadiusNM,
		Interval:  cfg.Airspace.UpdateInterval(),
		Retry:     retry,
		Metrics:   collector,
		Sinks:     sinks,
		Logger:    logger.With("component", "airspace"),
	})
	if err != nil {
		return err
	}

	follower, err := airspace.NewFollower(airspace.FollowerConfig{
		Source:   adsbClient,
		Flights:  flights,
		Store:    store,
		Interval: cfg.Airspace.FollowInterval(),
		Retry:    retry,
		Metrics:  collector,
		Sinks:    flightSinks,
		Logger:   logger.With("component", "follow"),
	})
	if err != nil {
		return err
	}

	dispatcher, err := query.NewDispatcher(query.Config{
		Reference:  index,
		Traffic:    store,
		Weather:    weatherProvider,
		METAR:      metarProvider,
		Checklists: checklists,
		Timeout:    cfg.Query.Timeout(),
		Observer:   collector,
		Logger:     logger.With("component", "query"),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Dispatcher:     dispatcher,
		Airspace:       worker,
		Follower:       follower,
		Autocomplete:   store,
		Metrics:        collector.Handler(),
		Health:         loader.health,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.With("component", "http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("✓ Airspace center",
		"name", cfg.Airspace.CenterName,
		"latitude", center.Latitude,
		"longitude", center.Longitude,
		"radius_nm", cfg.Airspace.RadiusNM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return follower.Run(gctx) })
	g.Go(func() error { return loader.run(gctx) })
	g.Go(func() error {
		serve := httpServer.ListenAndServe
		if cfg.Server.TLSEnabled {
			serve = func() error {
				return httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
			}
		}
		logger.Info("📡 Server listening", "addr", httpServer.Addr, "tls", cfg.Server.TLSEnabled)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openDatabase connects with retries and makes sure the schema exists.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*db.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	database, err := db.ReconnectWithRetry(connectCtx, cfg, 5, time.Second, logger.With("component", "db"))
	if err != nil {
		return nil, err
	}
	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info("✓ Database connected", "driver", database.Driver())
	return database, nil
}
