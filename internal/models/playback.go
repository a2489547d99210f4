/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AttemptOutcome enumerates backend attempt results.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
	OutcomeTimeout AttemptOutcome = "timeout"
)

// BackendAttempt records a single cascade step for diagnostics.
type BackendAttempt struct {
	Backend   string         `json:"backend"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Outcome   AttemptOutcome `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
}

// Preferences are per guild defaults read once when a session is created.
type Preferences struct {
	DefaultVolume int
	Loop          bool
	Autoplay      bool
	Filter        string
}

// GuildPreference is the stored row backing Preferences.
type GuildPreference struct {
	GuildID       string `gorm:"primaryKey;type:varchar(32)"`
	DefaultVolume int
	Loop          bool
	Autoplay      bool
	Filter        string `gorm:"type:varchar(32)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName pins the table name regardless of naming strategy.
func (GuildPreference) TableName() string {
	return "guild_preferences"
}

// Preferences converts the row, falling back to defaults for unset values.
func (g GuildPreference) Preferences(defaults Preferences) Preferences {
	p := defaults
	if g.DefaultVolume > 0 && g.DefaultVolume <= 100 {
		p.DefaultVolume = g.DefaultVolume
	}
	p.Loop = g.Loop
	p.Autoplay = g.Autoplay
	if g.Filter != "" {
		p.Filter = g.Filter
	}
	return p
}

// SessionSnapshot is a read-only copy of one guild's playback state.
type SessionSnapshot struct {
	GuildID             string    `json:"guild_id"`
	State               string    `json:"state"`
	NowPlaying          *Track    `json:"now_playing,omitempty"`
	Pending             []Track   `json:"pending"`
	History             []Track   `json:"history"`
	Loop                bool      `json:"loop"`
	Autoplay            bool      `json:"autoplay"`
	VolumePercent       int       `json:"volume_percent"`
	PlaybackRate        float64   `json:"playback_rate"`
	ActiveFilter        string    `json:"active_filter"`
	LastActivityAt      time.Time `json:"last_activity_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
