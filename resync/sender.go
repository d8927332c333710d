// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resync

import (
	"errors"
	"log/slog"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

// Source is the part of the history store the sender reads.
type Source interface {
	Bounds() history.Bounds
	Live() *terminal.Grid
	DeltasSince(seq terminal.Seq) ([]terminal.Delta, error)
}

// SenderConfig tunes the sender. Zero values take the defaults noted.
type SenderConfig struct {
	// MaxChain is the longest delta chain sent in answer to a
	// ResyncRequest before a snapshot is sent instead. Default 256.
	MaxChain int

	// MaxUpdates bounds the deltas in one State frame from Next.
	// Default 64.
	MaxUpdates int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Sender produces versioned states for one viewer.
type Sender struct {
	source Source
	config SenderConfig
	logger *slog.Logger
	sent   uint64
}

// NewSender returns a sender whose next state builds on base, usually
// the AsOf of the viewer's initial snapshot.
func NewSender(source Source, base uint64, config SenderConfig) *Sender {
	if config.MaxChain <= 0 {
		config.MaxChain = 256
	}
	if config.MaxUpdates <= 0 {
		config.MaxUpdates = 64
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Sender{source: source, config: config, logger: config.Logger, sent: base}
}

// Version returns the version of the last state produced.
func (s *Sender) Version() uint64 { return s.sent }

// Next returns the states carrying every delta since the last call,
// each based on the previous one. When the deltas have been compacted
// away, or there are more than MaxChain of them, it returns a single
// snapshot state instead.
func (s *Sender) Next() []protocol.State {
	deltas, err := s.source.DeltasSince(terminal.Seq(s.sent))
	if errors.Is(err, history.ErrCompacted) || (err == nil && len(deltas) > s.config.MaxChain) {
		state := s.snapshot()
		return []protocol.State{state}
	}
	if err != nil {
		s.logger.Warn("reading deltas for resync lane", "version", s.sent, "error", err)
		return nil
	}

	var states []protocol.State
	for len(deltas) > 0 {
		n := min(len(deltas), s.config.MaxUpdates)
		batch := deltas[:n]
		deltas = deltas[n:]
		version := uint64(batch[n-1].Seq)
		states = append(states, protocol.State{
			Version:     version,
			BaseVersion: s.sent,
			Updates:     batch,
		})
		s.sent = version
	}
	return states
}

// Heartbeat reports the host head and the last version sent so an idle
// receiver can notice that the final state was lost.
func (s *Sender) Heartbeat() protocol.Heartbeat {
	return protocol.Heartbeat{Seq: s.source.Bounds().Head, Version: s.sent}
}

// Answer bridges from request.LastVersion to the current head: a delta
// chain when the store still holds it and it is at most MaxChain long,
// a snapshot otherwise.
func (s *Sender) Answer(request protocol.ResyncRequest) protocol.State {
	deltas, err := s.source.DeltasSince(terminal.Seq(request.LastVersion))
	if err != nil || len(deltas) > s.config.MaxChain {
		s.logger.Info("answering resync with snapshot",
			"last_version", request.LastVersion,
			"chain", len(deltas),
			"error", err,
		)
		return s.snapshot()
	}

	version := request.LastVersion
	if len(deltas) > 0 {
		version = uint64(deltas[len(deltas)-1].Seq)
	}
	s.sent = max(s.sent, version)
	s.config.Metrics.ResyncAnswered("chain")
	return protocol.State{
		Version:     version,
		BaseVersion: request.LastVersion,
		Updates:     deltas,
	}
}

func (s *Sender) snapshot() protocol.State {
	state := s.source.Live().State()
	version := uint64(state.Seq)
	s.sent = max(s.sent, version)
	s.config.Metrics.ResyncAnswered("snapshot")
	return protocol.State{Version: version, IsSnapshot: true, Grid: &state}
}
