// Package config provides the typed application configuration, loaded from
// a YAML file, VISITLENS_* environment variables, and flag bindings.
package config

import (
	"fmt"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Tracking TrackingConfig `mapstructure:"tracking"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TrackingConfig controls the milestone tracker and its polling cadence.
type TrackingConfig struct {
	// PlaceID is the tracked Roblox place.
	PlaceID string `mapstructure:"place_id"`
	// InitialGoal is the first milestone target.
	InitialGoal int64 `mapstructure:"initial_goal"`
	// PollInterval is the scheduled update period.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// JitterMin/JitterMax bound the one-time delay before the first
	// scheduled tick. Widen in production to desynchronize co-located
	// instances.
	JitterMin time.Duration `mapstructure:"jitter_min"`
	JitterMax time.Duration `mapstructure:"jitter_max"`
	// AutoStart begins tracking ChannelID as soon as serve comes up.
	AutoStart bool   `mapstructure:"auto_start"`
	ChannelID string `mapstructure:"channel_id"`
}

// UpstreamConfig controls the Roblox API client.
type UpstreamConfig struct {
	// RequestFloor is the minimum spacing between upstream requests;
	// RequestJitterMin/Max are added on top of a spacing wait.
	RequestFloor     time.Duration `mapstructure:"request_floor"`
	RequestJitterMin time.Duration `mapstructure:"request_jitter_min"`
	RequestJitterMax time.Duration `mapstructure:"request_jitter_max"`
	// QuotaRequests per QuotaWindow before callers wait for window reset.
	QuotaRequests int           `mapstructure:"quota_requests"`
	QuotaWindow   time.Duration `mapstructure:"quota_window"`
	// MaxRetries per call kind, MaxPages of server listings per cycle.
	MaxRetries int `mapstructure:"max_retries"`
	MaxPages   int `mapstructure:"max_pages"`
	// Timeout applies per HTTP request.
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	// Base URL overrides, used by tests and staging mirrors.
	GamesBaseURL string `mapstructure:"games_base_url"`
	ApisBaseURL  string `mapstructure:"apis_base_url"`
}

// ServerConfig contains the liveness HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tracking: TrackingConfig{
			InitialGoal:  3358,
			PollInterval: 5 * time.Minute,
			JitterMin:    500 * time.Millisecond,
			JitterMax:    15 * time.Second,
		},
		Upstream: UpstreamConfig{
			RequestFloor:     2 * time.Second,
			RequestJitterMin: 100 * time.Millisecond,
			RequestJitterMax: 500 * time.Millisecond,
			QuotaRequests:    10,
			QuotaWindow:      5 * time.Minute,
			MaxRetries:       3,
			MaxPages:         3,
			Timeout:          10 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Tracking.InitialGoal <= 0 {
		return fmt.Errorf("tracking.initial_goal must be positive")
	}
	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("tracking.poll_interval must be positive")
	}
	if c.Tracking.JitterMax < c.Tracking.JitterMin {
		return fmt.Errorf("tracking.jitter_max must be >= tracking.jitter_min")
	}
	if c.Upstream.QuotaRequests <= 0 {
		return fmt.Errorf("upstream.quota_requests must be positive")
	}
	if c.Upstream.QuotaWindow <= 0 {
		return fmt.Errorf("upstream.quota_window must be positive")
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("upstream.max_retries must not be negative")
	}
	if c.Upstream.MaxPages <= 0 {
		return fmt.Errorf("upstream.max_pages must be positive")
	}
	if c.Tracking.AutoStart && c.Tracking.ChannelID == "" {
		return fmt.Errorf("tracking.channel_id is required when auto_start is set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	return nil
}
