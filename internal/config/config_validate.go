// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/validation"
)

// Bounds of every per-kind refresh window.
const (
	MinRefreshInterval = 30 * time.Second
	MaxRefreshInterval = 5 * time.Minute
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateREST(); err != nil {
		return err
	}

	if err := c.validateRefresh(); err != nil {
		return err
	}

	if err := c.validateRealtime(); err != nil {
		return err
	}

	if err := c.validateMap(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return c.validateRateLimits()
}

// Rate limit constants
const (
	minRateLimitRequests = 1           // Minimum 1 request allowed
	maxRateLimitRequests = 100000      // Maximum 100K requests per window
	minRateLimitWindow   = time.Second // Minimum 1 second window
	maxRateLimitWindow   = time.Hour   // Maximum 1 hour window
)

// validateRateLimits validates rate limiting configuration bounds.
func (c *Config) validateRateLimits() error {
	if c.Server.RateLimitDisabled {
		return nil
	}

	if c.Server.RateLimitReqs < minRateLimitRequests || c.Server.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Server.RateLimitWindow < minRateLimitWindow || c.Server.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateREST validates the REST collaborator configuration
func (c *Config) validateREST() error {
	if c.REST.BaseURL == "" {
		return fmt.Errorf("REST_BASE_URL is required")
	}
	if err := checkURL("REST_BASE_URL", c.REST.BaseURL, restURLRule); err != nil {
		return err
	}
	if containsPlaceholder(c.REST.Token) {
		return fmt.Errorf("REST_TOKEN contains a placeholder value")
	}
	if c.REST.Timeout <= 0 {
		return fmt.Errorf("REST_TIMEOUT must be positive")
	}
	return nil
}

// validateRefresh validates every per-kind refresh window
func (c *Config) validateRefresh() error {
	for _, k := range models.AllKinds {
		interval := c.Refresh.IntervalFor(k.Slug())
		if interval < MinRefreshInterval || interval > MaxRefreshInterval {
			return fmt.Errorf("REFRESH_%s_INTERVAL must be between %v and %v, got %v",
				strings.ToUpper(k.Slug()), MinRefreshInterval, MaxRefreshInterval, interval)
		}
	}
	if c.Refresh.FetchTimeout <= 0 {
		return fmt.Errorf("REFRESH_FETCH_TIMEOUT must be positive")
	}
	if c.Refresh.FetchTimeout > MinRefreshInterval {
		return fmt.Errorf("REFRESH_FETCH_TIMEOUT must not exceed %v", MinRefreshInterval)
	}
	return nil
}

// validateRealtime validates the push channel configuration (only if enabled)
func (c *Config) validateRealtime() error {
	if !c.Realtime.Enabled {
		return nil
	}

	if !c.Realtime.EmbeddedServer {
		if err := checkURL("NATS_URL", c.Realtime.URL, natsURLRule); err != nil {
			return err
		}
	} else if c.Realtime.EmbeddedPort < 1 || c.Realtime.EmbeddedPort > 65535 {
		return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
	}

	if len(c.Realtime.Topics) == 0 {
		return fmt.Errorf("REALTIME_TOPICS must map at least one subject when REALTIME_ENABLED=true")
	}
	for topic, kind := range c.Realtime.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("REALTIME_TOPICS contains an empty subject")
		}
		if _, err := models.ParseKind(kind); err != nil {
			return fmt.Errorf("REALTIME_TOPICS %s: %w", topic, err)
		}
	}
	return nil
}

// validateMap validates map session defaults
func (c *Config) validateMap() error {
	if c.Map.GeolocationTimeout <= 0 {
		return fmt.Errorf("MAP_GEOLOCATION_TIMEOUT must be positive")
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ShouldWarnAboutCORS returns true if wildcard CORS is configured outside
// development.
func (c *Config) ShouldWarnAboutCORS() bool {
	if c.Server.Environment == "development" {
		return false
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_TOKEN",
	"PLACEHOLDER",
}

// containsPlaceholder checks if a value contains common placeholder patterns
func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upperValue, pattern) {
			return true
		}
	}
	return false
}
