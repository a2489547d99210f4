/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for search results and guild preferences.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/models"
)

// Default TTL values for different cache types
const (
	DefaultSearchTTL      = 1 * time.Hour
	DefaultPreferencesTTL = 30 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeySearch      = "guildtune:cache:search:"      // + sha1(limit|query)
	KeyPreferences = "guildtune:cache:preferences:" // + guild_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SearchTTL      time.Duration
	PreferencesTTL time.Duration

	// DisableOnError turns the cache off after the first Redis failure.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SearchTTL:      DefaultSearchTTL,
		PreferencesTTL: DefaultPreferencesTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache and checks connectivity. An unreachable Redis yields a disabled cache,
// not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		_ = client.Close()
		return NewWithClient(nil, cfg, logger), nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient wraps an existing client. A nil client gives a permanently disabled cache.
func NewWithClient(client *redis.Client, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.PreferencesTTL <= 0 {
		cfg.PreferencesTTL = DefaultPreferencesTTL
	}
	return &Cache{
		client:   client,
		logger:   logger.With().Str("component", "cache").Logger(),
		config:   cfg,
		disabled: client == nil,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// Search result caching

// SearchKey derives the cache key for a query and limit.
func SearchKey(query string, limit int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d|%s", limit, strings.ToLower(strings.TrimSpace(query)))))
	return KeySearch + hex.EncodeToString(sum[:])
}

// GetSearch retrieves cached candidates for a query.
func (c *Cache) GetSearch(ctx context.Context, query string, limit int) ([]models.Candidate, bool) {
	var candidates []models.Candidate
	found, err := c.get(ctx, SearchKey(query, limit), &candidates)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("query", query).Int("count", len(candidates)).Msg("search cache hit")
	return candidates, true
}

// SetSearch caches candidates for a query.
func (c *Cache) SetSearch(ctx context.Context, query string, limit int, candidates []models.Candidate) error {
	return c.set(ctx, SearchKey(query, limit), candidates, c.config.SearchTTL)
}

// Preference caching

// GetPreferences retrieves cached guild preferences.
func (c *Cache) GetPreferences(ctx context.Context, guildID string) (models.Preferences, bool) {
	var prefs models.Preferences
	found, err := c.get(ctx, KeyPreferences+guildID, &prefs)
	if err != nil || !found {
		return models.Preferences{}, false
	}
	c.logger.Debug().Str("guild_id", guildID).Msg("preferences cache hit")
	return prefs, true
}

// SetPreferences caches guild preferences.
func (c *Cache) SetPreferences(ctx context.Context, guildID string, prefs models.Preferences) error {
	return c.set(ctx, KeyPreferences+guildID, prefs, c.config.PreferencesTTL)
}

// InvalidatePreferences drops cached preferences for a guild.
func (c *Cache) InvalidatePreferences(ctx context.Context, guildID string) error {
	c.logger.Debug().Str("guild_id", guildID).Msg("invalidating preferences cache")
	return c.delete(ctx, KeyPreferences+guildID)
}
