// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/terminal"
	"github.com/bureau-foundation/termsync/transport"
	"github.com/bureau-foundation/termsync/view"
)

// RelayConfig configures the HTTP surface.
type RelayConfig struct {
	// Address is reported as the session listener's address.
	Address string
	Codec   transport.FrameCodec

	// AllowedOrigins lists the browser origins accepted for websocket
	// upgrades. Empty accepts same-host origins only.
	AllowedOrigins []string

	// Signaler backs /signal/. Nil uses an in-memory signaler, which
	// the host's own WebRTC listener can share via Relay.Signaler.
	Signaler transport.Signaler

	// Gatherer backs /metrics. Nil leaves /metrics unmounted.
	Gatherer prometheus.Gatherer
}

// Relay is the host's HTTP handler:
//
//	/session      websocket upgrade to a viewer link
//	/signal/...   WebRTC offer/answer exchange
//	/metrics      Prometheus exposition
//	/debug/view   text projection of the store (?top=&height=)
type Relay struct {
	host     *Host
	sessions *transport.WebSocketListener
	signaler transport.Signaler
	mux      *http.ServeMux
}

// NewRelay builds the handler. Links upgraded on /session are handed
// out by Sessions; pass it to Host.Serve.
func NewRelay(h *Host, config RelayConfig) *Relay {
	if config.Signaler == nil {
		config.Signaler = transport.NewMemorySignaler()
	}
	r := &Relay{
		host:     h,
		signaler: config.Signaler,
		mux:      http.NewServeMux(),
	}
	r.sessions = transport.NewWebSocketListener(config.Address, config.Codec, originChecker(config.AllowedOrigins), h.logger)

	r.mux.Handle("/session", r.sessions)
	r.mux.Handle("/signal/", http.StripPrefix("/signal", transport.NewSignalHandler(r.signaler, h.logger)))
	if config.Gatherer != nil {
		r.mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	r.mux.HandleFunc("/debug/view", r.serveView)
	return r
}

func (r *Relay) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	r.mux.ServeHTTP(writer, request)
}

// Sessions returns the listener for websocket viewers.
func (r *Relay) Sessions() transport.Listener { return r.sessions }

// Signaler returns the signaler behind /signal/.
func (r *Relay) Signaler() transport.Signaler { return r.signaler }

// Close stops handing out websocket links.
func (r *Relay) Close() error { return r.sessions.Close() }

func (r *Relay) serveView(writer http.ResponseWriter, request *http.Request) {
	bounds := r.host.store.Bounds()
	height := bounds.Height
	if value := request.URL.Query().Get("height"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(writer, "height must be a positive integer", http.StatusBadRequest)
			return
		}
		height = parsed
	}

	var projection view.Viewport
	if value := request.URL.Query().Get("top"); value != "" {
		top, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			http.Error(writer, "top must be a row number", http.StatusBadRequest)
			return
		}
		projection, err = view.Historical(r.host.store, terminal.RowID(top), height)
		switch {
		case errors.Is(err, history.ErrNotAvailable):
			http.Error(writer, fmt.Sprintf("row %d was evicted; history starts at %d", top, bounds.Floor), http.StatusGone)
			return
		case errors.Is(err, history.ErrOutOfRange):
			http.Error(writer, fmt.Sprintf("row %d is beyond the tail %d", top, bounds.Tail), http.StatusNotFound)
			return
		case err != nil:
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		projection = view.Realtime(r.host.store, height)
	}

	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(writer, "# %s top=%d seq=%d floor=%d tail=%d\n",
		projection.Mode, projection.Top, projection.Seq, bounds.Floor, bounds.Tail)
	for _, row := range projection.Rows {
		fmt.Fprintf(writer, "%8d  %s\n", row.ID, row.Text())
	}
}

// originChecker accepts requests without an Origin header (native
// clients), listed origins, and with none listed, origins naming the
// request's own host.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(request *http.Request) bool {
		origin := request.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		parsed, err := url.Parse(origin)
		return err == nil && strings.EqualFold(parsed.Host, request.Host)
	}
}
