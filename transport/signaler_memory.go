// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. The host's SignalHandler
// serves one to remote viewers; tests share one between both ends.
//
// Each offerer/answerer pair holds at most one offer and one answer,
// the most recently published. Poll returns a signal once per poller
// and generation.
type MemorySignaler struct {
	mu      sync.Mutex
	offers  map[string]Signal // key: offerer|answerer
	answers map[string]Signal // key: offerer|answerer
	// delivered maps "<store>:<poller>:<key>" to the newest generation
	// returned to that poller.
	delivered map[string]uint64
}

// NewMemorySignaler creates an empty signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:    make(map[string]Signal),
		answers:   make(map[string]Signal),
		delivered: make(map[string]uint64),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, signal Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey(signal.From, signal.To)
	if existing, ok := s.offers[key]; ok && existing.Generation > signal.Generation {
		return nil
	}
	s.offers[key] = signal
	// An answer to an older generation no longer applies.
	delete(s.answers, key)
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, signal Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey(signal.To, signal.From)
	if offer, ok := s.offers[key]; ok && offer.Generation != signal.Generation {
		// Answering a superseded offer.
		return nil
	}
	s.answers[key] = signal
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, localID string) ([]Signal, error) {
	return s.poll("offers", localID, s.offers, func(key string) bool {
		return strings.HasSuffix(key, signalingSeparator+localID)
	}), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, localID string) ([]Signal, error) {
	return s.poll("answers", localID, s.answers, func(key string) bool {
		return strings.HasPrefix(key, localID+signalingSeparator)
	}), nil
}

func (s *MemorySignaler) poll(label, poller string, store map[string]Signal, match func(string) bool) []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var signals []Signal
	for key, signal := range store {
		if !match(key) {
			continue
		}
		seenKey := label + ":" + poller + ":" + key
		if last, ok := s.delivered[seenKey]; ok && signal.Generation <= last {
			continue
		}
		s.delivered[seenKey] = signal.Generation
		signals = append(signals, signal)
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].From != signals[j].From {
			return signals[i].From < signals[j].From
		}
		return signals[i].Generation < signals[j].Generation
	})
	return signals
}
