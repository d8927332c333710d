// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resync

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

// Target receives what the receiver applies. *replica.Cache
// implements it.
type Target interface {
	Apply(terminal.Delta)
	ApplyState(terminal.State)
}

// ReceiverConfig tunes the receiver. Zero values take the defaults
// noted.
type ReceiverConfig struct {
	// MaxBuffered bounds states held while waiting for a gap to
	// close. Default 64.
	MaxBuffered int

	// RetryInterval is how long the receiver waits for an answer
	// before asking again for the same gap. Default 2s.
	RetryInterval time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Receiver applies versioned states in version order. It is safe for
// concurrent use: states arrive on the lossy channel and resync
// answers on the reliable one.
type Receiver struct {
	target Target
	config ReceiverConfig
	logger *slog.Logger

	mu     sync.Mutex
	last   uint64
	buffer map[uint64]protocol.State // keyed by BaseVersion

	requested    bool
	requestedAt  time.Time
	requestedFor uint64
}

// NewReceiver returns a receiver that has applied everything up to
// last.
func NewReceiver(target Target, last uint64, config ReceiverConfig) *Receiver {
	if config.MaxBuffered <= 0 {
		config.MaxBuffered = 64
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Receiver{
		target: target,
		config: config,
		logger: config.Logger,
		last:   last,
		buffer: make(map[uint64]protocol.State),
	}
}

// LastApplied returns the version the receiver has reached.
func (r *Receiver) LastApplied() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Buffered returns the number of states waiting for a gap to close.
func (r *Receiver) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Advance records that version was reached by other means, such as a
// snapshot on the reliable channel. It never moves backwards.
func (r *Receiver) Advance(version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version > r.last {
		r.last = version
		r.drainLocked()
	}
}

// Receive applies state or buffers it. When it finds a gap it returns
// ErrDesyncDetected with the request to send; it asks at most once per
// gap within RetryInterval.
func (r *Receiver) Receive(state protocol.State) (protocol.ResyncRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case state.IsSnapshot:
		if state.Grid != nil {
			r.target.ApplyState(*state.Grid)
		}
		r.logger.Debug("resync snapshot applied", "version", state.Version, "previous", r.last)
		r.last = state.Version
		clear(r.buffer)
		r.requested = false
		return protocol.ResyncRequest{}, nil
	case state.Version <= r.last:
		return protocol.ResyncRequest{}, nil
	case state.BaseVersion <= r.last:
		r.applyLocked(state)
		r.drainLocked()
		return protocol.ResyncRequest{}, nil
	}

	r.buffer[state.BaseVersion] = state
	if len(r.buffer) > r.config.MaxBuffered {
		// Keep the states nearest the gap.
		bases := slices.Sorted(maps.Keys(r.buffer))
		for _, base := range bases[r.config.MaxBuffered:] {
			delete(r.buffer, base)
		}
	}
	return r.requestLocked()
}

// Heartbeat compares the host's last sent version with what has been
// applied and requests the difference.
func (r *Receiver) Heartbeat(heartbeat protocol.Heartbeat) (protocol.ResyncRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if heartbeat.Version <= r.last {
		return protocol.ResyncRequest{}, nil
	}
	return r.requestLocked()
}

func (r *Receiver) applyLocked(state protocol.State) {
	for _, d := range state.Updates {
		r.target.Apply(d)
	}
	r.last = state.Version
	r.requested = false
}

// drainLocked applies buffered states that now connect, and drops
// those already covered.
func (r *Receiver) drainLocked() {
	for {
		progressed := false
		for base, state := range r.buffer {
			if state.Version <= r.last {
				delete(r.buffer, base)
				continue
			}
			if base <= r.last {
				delete(r.buffer, base)
				r.applyLocked(state)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (r *Receiver) requestLocked() (protocol.ResyncRequest, error) {
	now := r.config.Clock.Now()
	if r.requested && r.requestedFor == r.last && now.Sub(r.requestedAt) < r.config.RetryInterval {
		return protocol.ResyncRequest{}, nil
	}
	r.requested = true
	r.requestedFor = r.last
	r.requestedAt = now
	r.config.Metrics.ResyncRequested()
	r.logger.Info("version gap, requesting resync", "last_applied", r.last, "buffered", len(r.buffer))
	return protocol.ResyncRequest{LastVersion: r.last}, ErrDesyncDetected
}
