// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Signaling endpoints, relative to the mount point of SignalHandler.
const (
	signalPathOffer   = "/offer"
	signalPathAnswer  = "/answer"
	signalPathOffers  = "/offers"
	signalPathAnswers = "/answers"

	maxSignalBody = 1 << 20
)

// SignalHandler serves a Signaler over HTTP so viewers without another
// signaling path can negotiate WebRTC through the host's relay server.
// Mount it with http.StripPrefix.
type SignalHandler struct {
	signaler Signaler
	logger   *slog.Logger
}

// NewSignalHandler serves signaler.
func NewSignalHandler(signaler Signaler, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signaler: signaler, logger: logger}
}

func (h *SignalHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	switch {
	case request.Method == http.MethodPost && (request.URL.Path == signalPathOffer || request.URL.Path == signalPathAnswer):
		var signal Signal
		if err := json.NewDecoder(io.LimitReader(request.Body, maxSignalBody)).Decode(&signal); err != nil {
			http.Error(writer, "invalid signal: "+err.Error(), http.StatusBadRequest)
			return
		}
		if signal.From == "" || signal.To == "" || signal.SDP == "" ||
			strings.Contains(signal.From, signalingSeparator) || strings.Contains(signal.To, signalingSeparator) {
			http.Error(writer, "signal needs from, to and sdp", http.StatusBadRequest)
			return
		}
		publish := h.signaler.PublishOffer
		if request.URL.Path == signalPathAnswer {
			publish = h.signaler.PublishAnswer
		}
		if err := publish(request.Context(), signal); err != nil {
			h.logger.Warn("publishing signal failed", "from", signal.From, "to", signal.To, "error", err)
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writer.WriteHeader(http.StatusNoContent)

	case request.Method == http.MethodGet && (request.URL.Path == signalPathOffers || request.URL.Path == signalPathAnswers):
		localID := request.URL.Query().Get("for")
		if localID == "" {
			http.Error(writer, "missing ?for=", http.StatusBadRequest)
			return
		}
		poll := h.signaler.PollOffers
		if request.URL.Path == signalPathAnswers {
			poll = h.signaler.PollAnswers
		}
		signals, err := poll(request.Context(), localID)
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []Signal{}
		}
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(signals)

	default:
		http.NotFound(writer, request)
	}
}

var _ Signaler = (*HTTPSignaler)(nil)

// HTTPSignaler is the client side of SignalHandler.
type HTTPSignaler struct {
	// BaseURL is where the SignalHandler is mounted, e.g.
	// "http://host:7892/signal".
	BaseURL string
	Client  *http.Client
}

func (s *HTTPSignaler) PublishOffer(ctx context.Context, signal Signal) error {
	return s.publish(ctx, signalPathOffer, signal)
}

func (s *HTTPSignaler) PublishAnswer(ctx context.Context, signal Signal) error {
	return s.publish(ctx, signalPathAnswer, signal)
}

func (s *HTTPSignaler) PollOffers(ctx context.Context, localID string) ([]Signal, error) {
	return s.poll(ctx, signalPathOffers, localID)
}

func (s *HTTPSignaler) PollAnswers(ctx context.Context, localID string) ([]Signal, error) {
	return s.poll(ctx, signalPathAnswers, localID)
}

func (s *HTTPSignaler) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *HTTPSignaler) publish(ctx context.Context, path string, signal Signal) error {
	body, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(s.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := s.client().Do(request)
	if err != nil {
		return fmt.Errorf("publishing signal: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusNoContent && response.StatusCode != http.StatusOK {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("publishing signal: HTTP %d: %s", response.StatusCode, strings.TrimSpace(string(message)))
	}
	return nil
}

func (s *HTTPSignaler) poll(ctx context.Context, path, localID string) ([]Signal, error) {
	target := strings.TrimSuffix(s.BaseURL, "/") + path + "?for=" + url.QueryEscape(localID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	response, err := s.client().Do(request)
	if err != nil {
		return nil, fmt.Errorf("polling signals: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling signals: HTTP %d", response.StatusCode)
	}
	var signals []Signal
	if err := json.NewDecoder(io.LimitReader(response.Body, maxSignalBody)).Decode(&signals); err != nil {
		return nil, fmt.Errorf("decoding signals: %w", err)
	}
	return signals, nil
}
