/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package preferences reads per-guild playback defaults.
package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/guildtune/internal/cache"
	"github.com/friendsincode/guildtune/internal/models"
)

// Store looks up the preferences a new session starts with.
type Store interface {
	Lookup(ctx context.Context, guildID string) (models.Preferences, error)
}

// Defaults returns built-in preferences with the given volume.
func Defaults(volume int) models.Preferences {
	return models.Preferences{DefaultVolume: volume}
}

// Static serves the same preferences to every guild.
type Static struct {
	Prefs models.Preferences
}

// Lookup implements Store.
func (s Static) Lookup(context.Context, string) (models.Preferences, error) {
	return s.Prefs, nil
}

// GormStore reads the guild_preferences table. Guilds without a row get the defaults.
type GormStore struct {
	db       *gorm.DB
	cache    *cache.Cache
	defaults models.Preferences
	logger   zerolog.Logger
}

// NewGormStore creates a store. c may be nil.
func NewGormStore(db *gorm.DB, c *cache.Cache, defaults models.Preferences, logger zerolog.Logger) *GormStore {
	return &GormStore{
		db:       db,
		cache:    c,
		defaults: defaults,
		logger:   logger.With().Str("component", "preferences").Logger(),
	}
}

// Lookup implements Store.
func (s *GormStore) Lookup(ctx context.Context, guildID string) (models.Preferences, error) {
	if s.cache != nil {
		if prefs, ok := s.cache.GetPreferences(ctx, guildID); ok {
			return prefs, nil
		}
	}

	var row models.GuildPreference
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.remember(ctx, guildID, s.defaults)
		return s.defaults, nil
	case err != nil:
		return s.defaults, fmt.Errorf("lookup preferences for %s: %w", guildID, err)
	}

	prefs := row.Preferences(s.defaults)
	s.remember(ctx, guildID, prefs)
	return prefs, nil
}

func (s *GormStore) remember(ctx context.Context, guildID string, prefs models.Preferences) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPreferences(ctx, guildID, prefs); err != nil {
		s.logger.Debug().Err(err).Str("guild_id", guildID).Msg("preferences not cached")
	}
}
