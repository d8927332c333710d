// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/metrics"
)

// Config tunes gap filling. Zero values take the defaults noted.
type Config struct {
	// Lookahead is how many rows above the viewport top gap
	// detection scans. Default 120.
	Lookahead int

	// RequestRows is the MaxRows of each backfill request.
	// Default 64.
	RequestRows int

	// MaxPendingRequests bounds requests in flight. Default 4.
	MaxPendingRequests int

	// RequestInterval is the minimum spacing of new requests.
	// Default 250ms.
	RequestInterval time.Duration

	// RequestTimeout is how long a request may go unanswered before
	// it is retried. Default 5s.
	RequestTimeout time.Duration

	// MaxAttempts is how many times a span is requested before it is
	// marked Missing locally. Default 3.
	MaxAttempts int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.Lookahead <= 0 {
		c.Lookahead = 120
	}
	if c.RequestRows <= 0 {
		c.RequestRows = 64
	}
	if c.MaxPendingRequests <= 0 {
		c.MaxPendingRequests = 4
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = 250 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
