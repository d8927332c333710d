// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/termsync/lib/codec"
)

// Config is the complete termsync configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	History   HistoryConfig   `yaml:"history"`
	Sync      SyncConfig      `yaml:"sync"`
	Replica   ReplicaConfig   `yaml:"replica"`
	Resync    ResyncConfig    `yaml:"resync"`
	Transport TransportConfig `yaml:"transport"`
	Host      HostConfig      `yaml:"host"`
	Viewer    ViewerConfig    `yaml:"viewer"`
}

// HistoryConfig configures the host's history store.
type HistoryConfig struct {
	// Cols and Height are the live window size.
	Cols   int `yaml:"cols"`
	Height int `yaml:"height"`

	// SnapshotEvery is the number of deltas between snapshots.
	SnapshotEvery int `yaml:"snapshot_every"`

	// SnapshotInterval is the longest time between snapshots while
	// output is flowing. Zero disables time-based snapshots.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// MaxRows, MaxBytes and MaxSnapshots bound retained history.
	// MaxSnapshots of zero means no count limit.
	MaxRows      int   `yaml:"max_rows"`
	MaxBytes     int64 `yaml:"max_bytes"`
	MaxSnapshots int   `yaml:"max_snapshots"`

	// Compression is the snapshot payload codec: none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// SyncConfig configures each subscriber's lanes on the host.
type SyncConfig struct {
	InitialSnapshotRows int `yaml:"initial_snapshot_rows"`
	SnapshotChunkRows   int `yaml:"snapshot_chunk_rows"`
	MaxUpdatesPerFrame  int `yaml:"max_updates_per_frame"`
	BackfillChunkRows   int `yaml:"backfill_chunk_rows"`
	MaxBackfillRows     int `yaml:"max_backfill_rows"`
	MaxQueuedRequests   int `yaml:"max_queued_requests"`

	// TickInterval paces backfill chunks while no output arrives.
	TickInterval time.Duration `yaml:"tick_interval"`

	// SendTimeout bounds one frame send; a viewer that cannot take
	// a frame within it is disconnected as a slow consumer.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// ReplicaConfig configures the viewer's gap filling.
type ReplicaConfig struct {
	Lookahead          int           `yaml:"lookahead"`
	RequestRows        int           `yaml:"request_rows"`
	MaxPendingRequests int           `yaml:"max_pending_requests"`
	RequestInterval    time.Duration `yaml:"request_interval"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

// ResyncConfig configures the lossy live lane.
type ResyncConfig struct {
	// MaxChain is the longest delta chain sent to bridge a gap.
	MaxChain int `yaml:"max_chain"`

	// HeartbeatInterval is how often the host announces its version
	// on the lossy channel.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// RetryInterval is how long a viewer waits before asking again
	// for the same gap.
	RetryInterval time.Duration `yaml:"retry_interval"`

	MaxBuffered int `yaml:"max_buffered"`
}

// TransportConfig configures framing and peer-to-peer setup.
type TransportConfig struct {
	// Compression is the frame codec: none, lz4 or zstd.
	Compression    string `yaml:"compression"`
	MaxFrameSize   int    `yaml:"max_frame_size"`
	MaxMessageSize int    `yaml:"max_message_size"`

	// ICEServers are STUN/TURN URLs for WebRTC.
	ICEServers    []string `yaml:"ice_servers"`
	ICEUsername   string   `yaml:"ice_username"`
	ICECredential string   `yaml:"ice_credential"`

	// SignalURL is the base URL of a signaling relay. Empty disables
	// WebRTC.
	SignalURL string `yaml:"signal_url"`

	// ConnectTimeout bounds dialing and negotiation.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// HostConfig configures the host's listeners.
type HostConfig struct {
	// Listen is the TCP address for framed-stream viewers. Empty
	// disables it.
	Listen string `yaml:"listen"`

	// RelayListen is the HTTP address serving /session, /signal,
	// /metrics and /debug/view. Empty disables it.
	RelayListen string `yaml:"relay_listen"`

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows same-origin requests only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// PeerID is the host's identity on the signaling relay.
	PeerID string `yaml:"peer_id"`
}

// ViewerConfig configures the viewer.
type ViewerConfig struct {
	// Connect is a host TCP address; Relay a ws:// or wss:// URL;
	// Peer a host peer id reached over WebRTC. Exactly one is used.
	Connect string `yaml:"connect"`
	Relay   string `yaml:"relay"`
	Peer    string `yaml:"peer"`

	// Lossy asks the host to send live updates on the lossy channel
	// when the transport has one.
	Lossy bool `yaml:"lossy"`

	// InitialRows is how many rows of history arrive on connect.
	InitialRows int `yaml:"initial_rows"`

	// AckInterval is how often the viewer reports its position.
	AckInterval time.Duration `yaml:"ack_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		History: HistoryConfig{
			Cols:             80,
			Height:           24,
			SnapshotEvery:    100,
			SnapshotInterval: 5 * time.Second,
			MaxRows:          10000,
			MaxBytes:         100 << 20,
			Compression:      "lz4",
		},
		Sync: SyncConfig{
			InitialSnapshotRows: 500,
			SnapshotChunkRows:   64,
			MaxUpdatesPerFrame:  64,
			BackfillChunkRows:   64,
			MaxBackfillRows:     256,
			MaxQueuedRequests:   32,
			TickInterval:        20 * time.Millisecond,
			SendTimeout:         10 * time.Second,
		},
		Replica: ReplicaConfig{
			Lookahead:          120,
			RequestRows:        64,
			MaxPendingRequests: 4,
			RequestInterval:    250 * time.Millisecond,
			RequestTimeout:     5 * time.Second,
			MaxAttempts:        3,
		},
		Resync: ResyncConfig{
			MaxChain:          256,
			HeartbeatInterval: time.Second,
			RetryInterval:     2 * time.Second,
			MaxBuffered:       64,
		},
		Transport: TransportConfig{
			Compression:    "lz4",
			MaxFrameSize:   16 << 20,
			MaxMessageSize: 48 << 10,
			ConnectTimeout: 30 * time.Second,
		},
		Host: HostConfig{
			Listen: "127.0.0.1:7420",
			PeerID: "termsync-host",
		},
		Viewer: ViewerConfig{
			InitialRows: 500,
			AckInterval: time.Second,
		},
	}
}

// LoadFile reads path over the defaults. Keys absent from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Validate checks the configuration for values the components cannot
// run with. It reports every problem, not just the first.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, value int) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, value))
		}
	}
	positiveDuration := func(name string, value time.Duration) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, value))
		}
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	positive("history.cols", c.History.Cols)
	positive("history.height", c.History.Height)
	positive("history.snapshot_every", c.History.SnapshotEvery)
	positive("history.max_rows", c.History.MaxRows)
	if c.History.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("history.max_bytes must be positive, got %d", c.History.MaxBytes))
	}
	if c.History.MaxRows < c.History.Height {
		errs = append(errs, fmt.Errorf("history.max_rows (%d) must be at least history.height (%d)", c.History.MaxRows, c.History.Height))
	}
	if _, err := codec.ParseCompressionTag(c.History.Compression); err != nil {
		errs = append(errs, fmt.Errorf("history.compression: %w", err))
	}

	positive("sync.initial_snapshot_rows", c.Sync.InitialSnapshotRows)
	positive("sync.snapshot_chunk_rows", c.Sync.SnapshotChunkRows)
	positive("sync.max_updates_per_frame", c.Sync.MaxUpdatesPerFrame)
	positive("sync.backfill_chunk_rows", c.Sync.BackfillChunkRows)
	positive("sync.max_backfill_rows", c.Sync.MaxBackfillRows)
	positive("sync.max_queued_requests", c.Sync.MaxQueuedRequests)
	positiveDuration("sync.tick_interval", c.Sync.TickInterval)
	positiveDuration("sync.send_timeout", c.Sync.SendTimeout)

	positive("replica.lookahead", c.Replica.Lookahead)
	positive("replica.request_rows", c.Replica.RequestRows)
	positive("replica.max_pending_requests", c.Replica.MaxPendingRequests)
	positive("replica.max_attempts", c.Replica.MaxAttempts)
	positiveDuration("replica.request_interval", c.Replica.RequestInterval)
	positiveDuration("replica.request_timeout", c.Replica.RequestTimeout)
	if c.Replica.RequestRows > c.Sync.MaxBackfillRows {
		errs = append(errs, fmt.Errorf("replica.request_rows (%d) exceeds sync.max_backfill_rows (%d)", c.Replica.RequestRows, c.Sync.MaxBackfillRows))
	}

	positive("resync.max_chain", c.Resync.MaxChain)
	positive("resync.max_buffered", c.Resync.MaxBuffered)
	positiveDuration("resync.heartbeat_interval", c.Resync.HeartbeatInterval)
	positiveDuration("resync.retry_interval", c.Resync.RetryInterval)

	if _, err := codec.ParseCompressionTag(c.Transport.Compression); err != nil {
		errs = append(errs, fmt.Errorf("transport.compression: %w", err))
	}
	positive("transport.max_frame_size", c.Transport.MaxFrameSize)
	positive("transport.max_message_size", c.Transport.MaxMessageSize)
	positiveDuration("transport.connect_timeout", c.Transport.ConnectTimeout)

	positive("viewer.initial_rows", c.Viewer.InitialRows)
	positiveDuration("viewer.ack_interval", c.Viewer.AckInterval)
	targets := 0
	for _, target := range []string{c.Viewer.Connect, c.Viewer.Relay, c.Viewer.Peer} {
		if target != "" {
			targets++
		}
	}
	if targets > 1 {
		errs = append(errs, errors.New("viewer: at most one of connect, relay and peer may be set"))
	}
	if c.Viewer.Peer != "" && c.Transport.SignalURL == "" {
		errs = append(errs, errors.New("viewer.peer requires transport.signal_url"))
	}

	return errors.Join(errs...)
}
