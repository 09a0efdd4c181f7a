// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tomtom215/patrolmap/internal/api"
	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/middleware"
	"github.com/tomtom215/patrolmap/internal/realtime"
	"github.com/tomtom215/patrolmap/internal/refresh"
	"github.com/tomtom215/patrolmap/internal/rest"
	"github.com/tomtom215/patrolmap/internal/store"
	"github.com/tomtom215/patrolmap/internal/supervisor"
	ws "github.com/tomtom215/patrolmap/internal/websocket"
)

// filterJanitorInterval is how often expired filter views are purged.
const filterJanitorInterval = time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	identity := logging.Identity{Service: "patrolmap", Version: api.Version, Environment: cfg.Server.Environment}
	if err := logging.Init(logging.FromLoggingConfig(cfg.Logging, identity)); err != nil {
		logging.Warn().Err(err).Msg("Logging configuration partly ignored")
	}

	logging.Info().
		Str("version", api.Version).
		Str("environment", cfg.Server.Environment).
		Str("rest_base_url", cfg.REST.BaseURL).
		Bool("realtime_enabled", cfg.Realtime.Enabled).
		Msg("Starting patrolmap with supervisor tree")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows every origin in production; set CORS_ORIGINS")
	}

	watchLogLevel()

	entities := store.New(store.Options{AllowAuthoritativeEmpty: cfg.Store.AllowAuthoritativeEmpty})
	if err := entities.Init(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize entity store")
	}
	index := store.NewSpatialIndex(entities, cfg.Cache.SpatialCellKm)

	fetcher := rest.NewBreakerClient(&cfg.REST)
	refreshMgr := refresh.NewManager(cfg.Refresh, fetcher, entities)

	engine := filter.NewEngine(entities, cfg.Cache.FilterCapacity, cfg.Cache.FilterTTL)

	hub := ws.NewHub()
	sessions := ws.NewSessions(hub, entities, engine, refreshMgr, markers.OptionsFromConfig(cfg.Map))
	unsubscribeSync := refreshMgr.Subscribe(hub.BroadcastSyncEvent)

	protocol := realtime.NewProtocol(entities)
	var components *realtime.Components
	if cfg.Realtime.Enabled {
		components = realtime.NewComponents(cfg.Realtime, protocol)
	} else {
		logging.Info().Msg("Real-time push disabled (REALTIME_ENABLED=false), REST polling only")
	}

	deps := api.Deps{
		Store:     entities,
		Views:     engine,
		Refresher: refreshMgr,
		Push:      protocol,
		Index:     index,
		Sessions:  sessions,
		PerfMon:   middleware.NewPerformanceMonitor(1000),
	}
	if components != nil {
		deps.Realtime = components
	}

	handler := api.NewHandler(deps, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(&cfg.Server)))
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.TreeConfigFromServer(&cfg.Server))

	tree.AddRefresh(refreshMgr)
	tree.AddMaintenance("filter-cache-janitor", filterJanitorInterval, func(context.Context) int {
		return engine.PurgeExpired()
	})

	tree.AddHub(hub, sessions)
	if components != nil {
		tree.AddRealtime(components)
		logging.Info().
			Str("url", cfg.Realtime.URL).
			Bool("embedded", cfg.Realtime.EmbeddedServer).
			Int("topics", len(cfg.Realtime.Topics)).
			Msg("Real-time push channel added to supervisor tree")
	}

	tree.AddHTTPServer(server, server.Addr, cfg.Server.ShutdownTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// errCh delivers exactly one value and is never closed.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
		cancel()
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	if unstopped := tree.Unstopped(); len(unstopped) > 0 {
		logging.Warn().Strs("services", unstopped).Msg("Services failed to stop within timeout")
	}

	unsubscribeSync()
	sessions.Close()
	index.Close()
	entities.Dispose()

	logging.Info().Msg("Application stopped gracefully")
}

// watchLogLevel re-reads the configuration when the config file changes
// and applies the new log level. Other settings need a restart.
func watchLogLevel() {
	path := config.FindConfigFile()
	if path == "" {
		return
	}
	err := config.WatchConfigFile(path, func() {
		reloaded, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		if err := logging.SetLevelString(reloaded.Logging.Level); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Keeping current log level")
			return
		}
		logging.Info().Str("level", reloaded.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}
