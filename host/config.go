// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/replicate"
	"github.com/bureau-foundation/termsync/resync"
)

// Config configures a Host. Zero values take the defaults noted.
type Config struct {
	History history.Config
	Sync    replicate.Config
	Resync  resync.SenderConfig

	// TickInterval paces backfill chunks while no output arrives.
	// Default 20ms.
	TickInterval time.Duration

	// HeartbeatInterval is how often lossy viewers are sent a
	// Heartbeat. Default 1s.
	HeartbeatInterval time.Duration

	// SendTimeout bounds one frame send. Default 10s.
	SendTimeout time.Duration

	// HandshakeTimeout bounds the wait for the viewer's Hello.
	// Default 10s.
	HandshakeTimeout time.Duration

	// Input receives viewer keystrokes. Nil discards them.
	Input io.Writer

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 20 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.History.Clock = c.Clock
	c.History.Logger = c.Logger
	c.History.Metrics = c.Metrics
	c.Sync.Metrics = c.Metrics
	c.Resync.Metrics = c.Metrics
	return c
}
