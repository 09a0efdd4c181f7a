// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	client := rest.NewBreakerClient(&cfg.REST)
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	REST     RESTConfig     `koanf:"rest"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Store    StoreConfig    `koanf:"store"`
	Map      MapConfig      `koanf:"map"`
	Cache    CacheConfig    `koanf:"cache"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT
//   - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT
//   - CORS_ORIGINS: comma-separated origins (default: *)
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT
//   - ENVIRONMENT: development, staging, production
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment" validate:"oneof=development staging production"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// RESTConfig holds the backend REST collaborator settings. Each kind is
// fetched with GET BaseURL+Path.
//
// Environment Variables:
//   - REST_BASE_URL (required), REST_TOKEN, REST_TIMEOUT
//   - REST_OFFICERS_PATH, REST_INCIDENTS_PATH, REST_VEHICLES_PATH, REST_ROUTES_PATH
//   - REST_REQUESTS_PER_SECOND, REST_BURST
//   - REST_BREAKER_MAX_REQUESTS, REST_BREAKER_INTERVAL, REST_BREAKER_TIMEOUT,
//     REST_BREAKER_MIN_REQUESTS, REST_BREAKER_FAILURE_RATIO
type RESTConfig struct {
	BaseURL string        `koanf:"base_url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`

	OfficersPath  string `koanf:"officers_path" validate:"startswith=/"`
	IncidentsPath string `koanf:"incidents_path" validate:"startswith=/"`
	VehiclesPath  string `koanf:"vehicles_path" validate:"startswith=/"`
	RoutesPath    string `koanf:"routes_path" validate:"startswith=/"`

	// RequestsPerSecond paces outgoing requests across all kinds.
	// Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=1"`

	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
}

// RefreshConfig holds the per-kind polling windows.
//
// Environment Variables:
//   - REFRESH_OFFICERS_INTERVAL (default: 30s)
//   - REFRESH_VEHICLES_INTERVAL (default: 30s)
//   - REFRESH_INCIDENTS_INTERVAL (default: 60s)
//   - REFRESH_ROUTES_INTERVAL (default: 5m)
//   - REFRESH_FETCH_TIMEOUT (default: 20s)
type RefreshConfig struct {
	OfficersInterval  time.Duration `koanf:"officers_interval"`
	IncidentsInterval time.Duration `koanf:"incidents_interval"`
	VehiclesInterval  time.Duration `koanf:"vehicles_interval"`
	RoutesInterval    time.Duration `koanf:"routes_interval"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout"`
}

// RealtimeConfig holds the push channel settings.
//
// Topics maps a broker subject to the kind its messages carry. Several
// subjects may feed the same kind (incidents and alerts).
//
// Environment Variables:
//   - REALTIME_ENABLED (default: true)
//   - NATS_URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED, NATS_EMBEDDED_HOST, NATS_EMBEDDED_PORT
//   - NATS_MAX_RECONNECTS, NATS_RECONNECT_WAIT, NATS_CLIENT_NAME
//   - REALTIME_TOPICS: comma-separated subject=KIND pairs
type RealtimeConfig struct {
	Enabled        bool              `koanf:"enabled"`
	URL            string            `koanf:"url"`
	EmbeddedServer bool              `koanf:"embedded_server"`
	EmbeddedHost   string            `koanf:"embedded_host"`
	EmbeddedPort   int               `koanf:"embedded_port"`
	MaxReconnects  int               `koanf:"max_reconnects"`
	ReconnectWait  time.Duration     `koanf:"reconnect_wait"`
	ClientName     string            `koanf:"client_name"`
	Topics         map[string]string `koanf:"topics"`
}

// StoreConfig holds Entity Store policy.
//
// Environment Variables:
//   - STORE_ALLOW_AUTHORITATIVE_EMPTY (default: false)
type StoreConfig struct {
	// AllowAuthoritativeEmpty lets a response that explicitly reports zero
	// records clear its collection. When false an empty response never
	// blanks the map.
	AllowAuthoritativeEmpty bool `koanf:"allow_authoritative_empty"`
}

// MapConfig holds map session defaults.
//
// Environment Variables:
//   - MAP_DEFAULT_LATITUDE, MAP_DEFAULT_LONGITUDE, MAP_DEFAULT_ZOOM
//   - MAP_FIT_BOUNDS_ON_FIRST_RENDER (default: true)
//   - MAP_GEOLOCATION_TIMEOUT (default: 10s)
type MapConfig struct {
	DefaultLatitude        float64       `koanf:"default_latitude" validate:"gte=-90,lte=90"`
	DefaultLongitude       float64       `koanf:"default_longitude" validate:"gte=-180,lte=180"`
	DefaultZoom            int           `koanf:"default_zoom" validate:"gte=0,lte=22"`
	FitBoundsOnFirstRender bool          `koanf:"fit_bounds_on_first_render"`
	GeolocationTimeout     time.Duration `koanf:"geolocation_timeout"`
}

// CacheConfig holds in-memory cache sizing.
//
// Environment Variables:
//   - CACHE_FILTER_CAPACITY, CACHE_FILTER_TTL
//   - CACHE_SPATIAL_CELL_KM
type CacheConfig struct {
	FilterCapacity int           `koanf:"filter_capacity" validate:"gte=1"`
	FilterTTL      time.Duration `koanf:"filter_ttl"`
	SpatialCellKm  float64       `koanf:"spatial_cell_km" validate:"gt=0"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IntervalFor returns the refresh interval configured for a kind slug
// ("officers", "incidents", "vehicles", "routes").
func (r RefreshConfig) IntervalFor(slug string) time.Duration {
	switch slug {
	case "officers":
		return r.OfficersInterval
	case "incidents":
		return r.IncidentsInterval
	case "vehicles":
		return r.VehiclesInterval
	case "routes":
		return r.RoutesInterval
	}
	return 0
}

// PathFor returns the REST path configured for a kind slug.
func (r RESTConfig) PathFor(slug string) string {
	switch slug {
	case "officers":
		return r.OfficersPath
	case "incidents":
		return r.IncidentsPath
	case "vehicles":
		return r.VehiclesPath
	case "routes":
		return r.RoutesPath
	}
	return ""
}

// Load loads configuration with Koanf. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
