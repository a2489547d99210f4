/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/events"
)

// Transport kinds accepted by New.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindNATS   = "nats"
)

// Config selects and configures the event transport.
type Config struct {
	Kind   string
	NodeID string
	Redis  RedisConfig
	NATS   NATSConfig
}

// New builds the broker for cfg.Kind.
func New(cfg Config, logger zerolog.Logger) (events.Broker, error) {
	switch cfg.Kind {
	case "", KindMemory:
		return events.NewBus(), nil
	case KindRedis:
		return NewRedisBus(cfg.Redis, cfg.NodeID, logger)
	case KindNATS:
		return NewNATSBus(cfg.NATS, cfg.NodeID, logger)
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.Kind)
	}
}
