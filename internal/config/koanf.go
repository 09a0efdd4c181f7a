// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/patrolmap/config.yaml",
	"/etc/patrolmap/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultTopics maps the default push subjects to their kinds.
func DefaultTopics() map[string]string {
	return map[string]string{
		"/topic/officers":  "OFFICER",
		"/topic/incidents": "INCIDENT",
		"/topic/alerts":    "INCIDENT",
		"/topic/vehicles":  "VEHICLE",
		"/topic/routes":    "ROUTE",
	}
}

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3857,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		REST: RESTConfig{
			BaseURL:             "",
			Token:               "",
			Timeout:             15 * time.Second,
			OfficersPath:        "/api/officers",
			IncidentsPath:       "/api/incidents",
			VehiclesPath:        "/api/patrol-vehicles",
			RoutesPath:          "/api/patrol-routes",
			RequestsPerSecond:   5,
			Burst:               4,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Refresh: RefreshConfig{
			OfficersInterval:  30 * time.Second,
			IncidentsInterval: 60 * time.Second,
			VehiclesInterval:  30 * time.Second,
			RoutesInterval:    5 * time.Minute,
			FetchTimeout:      20 * time.Second,
		},
		Realtime: RealtimeConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			MaxReconnects:  -1, // retry forever
			ReconnectWait:  2 * time.Second,
			ClientName:     "patrolmap",
			Topics:         DefaultTopics(),
		},
		Store: StoreConfig{
			AllowAuthoritativeEmpty: false,
		},
		Map: MapConfig{
			DefaultLatitude:        34.0522,
			DefaultLongitude:       -118.2437,
			DefaultZoom:            12,
			FitBoundsOnFirstRender: true,
			GeolocationTimeout:     10 * time.Second,
		},
		Cache: CacheConfig{
			FilterCapacity: 256,
			FilterTTL:      5 * time.Minute,
			SpatialCellKm:  1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := FindConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// REST_BASE_URL -> rest.base_url
	// REFRESH_ROUTES_INTERVAL -> refresh.routes_interval
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// mapConfigPaths defines which config paths are parsed from comma-separated
// key=value pairs when they arrive as a string.
var mapConfigPaths = []string{
	"realtime.topics",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		trimmed := splitList(strVal)
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// processMapFields replaces a "a=b,c=d" string with a map. The env value
// replaces the whole map rather than merging into the defaults.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		m := make(map[string]interface{})
		for _, pair := range splitList(strVal) {
			key, value, found := strings.Cut(pair, "=")
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if !found || key == "" || value == "" {
				return fmt.Errorf("%s: expected key=value, got %q", path, pair)
			}
			m[key] = value
		}
		k.Delete(path)
		if err := k.Set(path, m); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	// REST collaborator
	"rest_base_url":              "rest.base_url",
	"rest_token":                 "rest.token",
	"rest_timeout":               "rest.timeout",
	"rest_officers_path":         "rest.officers_path",
	"rest_incidents_path":        "rest.incidents_path",
	"rest_vehicles_path":         "rest.vehicles_path",
	"rest_routes_path":           "rest.routes_path",
	"rest_requests_per_second":   "rest.requests_per_second",
	"rest_burst":                 "rest.burst",
	"rest_breaker_max_requests":  "rest.breaker_max_requests",
	"rest_breaker_interval":      "rest.breaker_interval",
	"rest_breaker_timeout":       "rest.breaker_timeout",
	"rest_breaker_min_requests":  "rest.breaker_min_requests",
	"rest_breaker_failure_ratio": "rest.breaker_failure_ratio",

	// Refresh scheduler
	"refresh_officers_interval":  "refresh.officers_interval",
	"refresh_incidents_interval": "refresh.incidents_interval",
	"refresh_vehicles_interval":  "refresh.vehicles_interval",
	"refresh_routes_interval":    "refresh.routes_interval",
	"refresh_fetch_timeout":      "refresh.fetch_timeout",

	// Push channel
	"realtime_enabled":    "realtime.enabled",
	"realtime_topics":     "realtime.topics",
	"nats_url":            "realtime.url",
	"nats_embedded":       "realtime.embedded_server",
	"nats_embedded_host":  "realtime.embedded_host",
	"nats_embedded_port":  "realtime.embedded_port",
	"nats_max_reconnects": "realtime.max_reconnects",
	"nats_reconnect_wait": "realtime.reconnect_wait",
	"nats_client_name":    "realtime.client_name",

	// Store policy
	"store_allow_authoritative_empty": "store.allow_authoritative_empty",

	// Map defaults
	"map_default_latitude":           "map.default_latitude",
	"map_default_longitude":          "map.default_longitude",
	"map_default_zoom":               "map.default_zoom",
	"map_fit_bounds_on_first_render": "map.fit_bounds_on_first_render",
	"map_geolocation_timeout":        "map.geolocation_timeout",

	// Caches
	"cache_filter_capacity": "cache.filter_capacity",
	"cache_filter_ttl":      "cache.filter_ttl",
	"cache_spatial_cell_km": "cache.spatial_cell_km",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - REST_BASE_URL -> rest.base_url
//   - HTTP_PORT -> server.port
//   - NATS_URL -> realtime.url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The caller is responsible for synchronizing access to the configuration
// it reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
