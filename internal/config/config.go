/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus transports.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
	EventBusNATS   = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Extraction
	FFmpegBin    string
	Proxy        string // http(s) or socks5 proxy used by every backend
	BackendsFile string // YAML backend chain; empty means the built-in chain

	// Playback
	ConnectTimeout         time.Duration
	TranslateTimeout       time.Duration
	AutoplayTimeout        time.Duration
	HistoryCap             int
	MaxQueueSize           int
	MaxConsecutiveFailures int
	FailureWindow          time.Duration
	IdleThreshold          time.Duration
	ReaperInterval         time.Duration
	DefaultVolume          int

	// Search
	SearchCacheTTL time.Duration
	SearchRate     float64 // requests per second
	SearchBurst    int

	// Redis cache and event bus
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Multi-instance configuration
	EventBus   string
	NATSURL    string
	InstanceID string

	// Preference store; an empty DSN serves built-in defaults
	DBBackend DatabaseBackend
	DBDSN     string

	// Admin API; an empty secret leaves /api/v1 unauthenticated
	AdminJWTSecret string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"GUILDTUNE_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"GUILDTUNE_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"GUILDTUNE_HTTP_PORT"}, 8080),

		FFmpegBin:    getEnvAny([]string{"GUILDTUNE_FFMPEG_BIN", "FFMPEG_BIN"}, "ffmpeg"),
		Proxy:        getEnvAny([]string{"GUILDTUNE_PROXY"}, ""),
		BackendsFile: getEnvAny([]string{"GUILDTUNE_BACKENDS_FILE"}, ""),

		ConnectTimeout:         getEnvDurationAny([]string{"GUILDTUNE_CONNECT_TIMEOUT"}, 20*time.Second),
		TranslateTimeout:       getEnvDurationAny([]string{"GUILDTUNE_TRANSLATE_TIMEOUT"}, 10*time.Second),
		AutoplayTimeout:        getEnvDurationAny([]string{"GUILDTUNE_AUTOPLAY_TIMEOUT"}, 10*time.Second),
		HistoryCap:             getEnvIntAny([]string{"GUILDTUNE_HISTORY_CAP"}, 50),
		MaxQueueSize:           getEnvIntAny([]string{"GUILDTUNE_MAX_QUEUE_SIZE"}, 500),
		MaxConsecutiveFailures: getEnvIntAny([]string{"GUILDTUNE_MAX_CONSECUTIVE_FAILURES"}, 3),
		FailureWindow:          getEnvDurationAny([]string{"GUILDTUNE_FAILURE_WINDOW"}, 2*time.Minute),
		IdleThreshold:          getEnvDurationAny([]string{"GUILDTUNE_IDLE_THRESHOLD"}, 5*time.Minute),
		ReaperInterval:         getEnvDurationAny([]string{"GUILDTUNE_REAPER_INTERVAL"}, time.Minute),
		DefaultVolume:          getEnvIntAny([]string{"GUILDTUNE_DEFAULT_VOLUME"}, 50),

		SearchCacheTTL: getEnvDurationAny([]string{"GUILDTUNE_SEARCH_CACHE_TTL"}, time.Hour),
		SearchRate:     getEnvFloatAny([]string{"GUILDTUNE_SEARCH_RATE"}, 5),
		SearchBurst:    getEnvIntAny([]string{"GUILDTUNE_SEARCH_BURST"}, 10),

		CacheEnabled:  getEnvBoolAny([]string{"GUILDTUNE_CACHE_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"GUILDTUNE_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"GUILDTUNE_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"GUILDTUNE_REDIS_DB"}, 0),

		EventBus:   strings.ToLower(getEnvAny([]string{"GUILDTUNE_EVENT_BUS"}, EventBusMemory)),
		NATSURL:    getEnvAny([]string{"GUILDTUNE_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		InstanceID: getEnvAny([]string{"GUILDTUNE_INSTANCE_ID"}, ""),

		DBBackend: DatabaseBackend(getEnvAny([]string{"GUILDTUNE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"GUILDTUNE_DB_DSN"}, ""),

		AdminJWTSecret: getEnvAny([]string{"GUILDTUNE_ADMIN_JWT_SECRET", "JWT_SIGNING_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"GUILDTUNE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GUILDTUNE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GUILDTUNE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	switch c.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("GUILDTUNE_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return fmt.Errorf("GUILDTUNE_DEFAULT_VOLUME must be between 0 and 100, got %d", c.DefaultVolume)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("GUILDTUNE_MAX_CONSECUTIVE_FAILURES must be at least 1")
	}
	if c.HistoryCap < 1 || c.MaxQueueSize < 1 {
		return fmt.Errorf("GUILDTUNE_HISTORY_CAP and GUILDTUNE_MAX_QUEUE_SIZE must be positive")
	}
	for name, d := range map[string]time.Duration{
		"GUILDTUNE_CONNECT_TIMEOUT":   c.ConnectTimeout,
		"GUILDTUNE_TRANSLATE_TIMEOUT": c.TranslateTimeout,
		"GUILDTUNE_AUTOPLAY_TIMEOUT":  c.AutoplayTimeout,
		"GUILDTUNE_FAILURE_WINDOW":    c.FailureWindow,
		"GUILDTUNE_IDLE_THRESHOLD":    c.IdleThreshold,
		"GUILDTUNE_REAPER_INTERVAL":   c.ReaperInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("GUILDTUNE_TRACING_SAMPLE_RATE must be within [0,1]")
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("GUILDTUNE_ADMIN_JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// Addr returns the admin API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("90s") or bare integers as seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
