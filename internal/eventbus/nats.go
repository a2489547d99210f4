/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/guildtune/internal/events"
)

// NATSBus relays events between instances over core NATS subjects. Local
// subscribers are served in-process so a lost connection only affects other nodes.
type NATSBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	local  *events.Bus
	nodeID string

	mu   sync.Mutex
	refs map[events.EventType]int
	subs map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS. Unlike the Redis bus a failed initial connection is an
// error, since nats.go already retries after the first successful connect.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	if nodeID == "" {
		nodeID = NodeID()
	}
	log := logger.With().Str("component", "eventbus").Str("transport", "nats").Logger()

	opts := []nats.Option{
		nats.Name("guildtune-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	log.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nodeID).Msg("nats event bus initialized")
	return &NATSBus{
		conn:   conn,
		logger: log,
		local:  events.NewBus(),
		nodeID: nodeID,
		refs:   make(map[events.EventType]int),
		subs:   make(map[events.EventType]*nats.Subscription),
	}, nil
}

func subject(eventType events.EventType) string {
	return channelPrefix + string(eventType)
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.refs[eventType]++
	if _, ok := nb.subs[eventType]; ok {
		return sub
	}

	ns, err := nb.conn.Subscribe(subject(eventType), func(msg *nats.Msg) {
		relayed, err := unmarshalMessage(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("failed to unmarshal nats message")
			return
		}
		if relayed.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, relayed.Payload)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats subscribe failed, local delivery only")
		return sub
	}
	nb.subs[eventType] = ns
	return sub
}

// Publish delivers payload locally and to every other node.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal nats message")
		return
	}
	if err := nb.conn.Publish(subject(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to nats")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.refs[eventType] > 0 {
		nb.refs[eventType]--
	}
	if nb.refs[eventType] == 0 {
		if ns, ok := nb.subs[eventType]; ok {
			_ = ns.Unsubscribe()
			delete(nb.subs, eventType)
		}
	}
}

// Close drains pending messages and closes the connection.
func (nb *NATSBus) Close() error {
	err := nb.conn.Drain()
	_ = nb.local.Close()
	if err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
