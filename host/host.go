// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/terminal"
	"github.com/bureau-foundation/termsync/transport"
)

// Host owns one history store and serves it to any number of viewers.
type Host struct {
	config  Config
	logger  *slog.Logger
	store   *history.Store
	session string

	inputMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a host with an empty history.
func New(config Config) *Host {
	config = config.withDefaults()
	id := uuid.NewString()
	logger := config.Logger.With("session", id)
	config.History.Logger = logger
	return &Host{
		config:   config,
		logger:   logger,
		store:    history.New(config.History),
		session:  id,
		sessions: make(map[string]*session),
	}
}

// Session returns the session id announced in Hello.
func (h *Host) Session() string { return h.session }

// Store returns the history store.
func (h *Host) Store() *history.Store { return h.store }

// Subscribers returns the number of attached viewers.
func (h *Host) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Ingest appends every mutation the emulator reports until its channel
// closes (nil) or ctx is done.
func (h *Host) Ingest(ctx context.Context, emulator terminal.Emulator) error {
	cols, lines := emulator.Dimensions()
	translator := terminal.NewTranslator(cols, lines)
	mutations := emulator.Mutations()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mutation, ok := <-mutations:
			if !ok {
				bounds := h.store.Bounds()
				h.logger.Info("terminal stream ended", "head", bounds.Head, "tail", bounds.Tail)
				return nil
			}
			for _, delta := range translator.Translate(mutation) {
				if _, err := h.store.Append(delta); err != nil {
					return fmt.Errorf("appending %s delta: %w", delta.Kind, err)
				}
			}
		}
	}
}

// Serve accepts links until ctx is done or the listener closes, running
// a session for each. It waits for its sessions before returning.
func (h *Host) Serve(ctx context.Context, listener transport.Listener) error {
	h.logger.Info("accepting viewers", "address", listener.Address())
	var wait sync.WaitGroup
	defer wait.Wait()
	for {
		link, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || transport.IsClosed(err) {
				return nil
			}
			return fmt.Errorf("accepting on %s: %w", listener.Address(), err)
		}
		wait.Add(1)
		go func() {
			defer wait.Done()
			if err := h.Attach(ctx, link); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("viewer session failed", "remote", link.Remote, "error", err)
			}
		}()
	}
}

// Attach runs one viewer session on link and closes the link when it
// ends. A viewer going away is not an error.
func (h *Host) Attach(ctx context.Context, link *transport.Link) error {
	defer link.Close()
	s := newSession(h, link)

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.config.Metrics.SubscriberConnected()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()
		h.config.Metrics.SubscriberDisconnected()
	}()

	err := s.run(ctx)
	if errors.Is(err, errViewerGone) {
		s.logger.Info("viewer disconnected")
		return nil
	}
	return err
}

// writeInput forwards viewer keystrokes. Writes from different viewers
// are not interleaved.
func (h *Host) writeInput(data []byte) error {
	if h.config.Input == nil || len(data) == 0 {
		return nil
	}
	h.inputMu.Lock()
	defer h.inputMu.Unlock()
	_, err := h.config.Input.Write(data)
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
