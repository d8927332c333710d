// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Sync.InitialSnapshotRows != 500 {
		t.Errorf("initial_snapshot_rows = %d, want 500", cfg.Sync.InitialSnapshotRows)
	}
	if cfg.Replica.RequestTimeout != 5*time.Second {
		t.Errorf("request_timeout = %s, want 5s", cfg.Replica.RequestTimeout)
	}
}

func TestLoadFileYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "termsync.yaml", `
log_level: debug
history:
  max_rows: 2000
  compression: zstd
replica:
  request_interval: 100ms
viewer:
  relay: ws://relay.example/session
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.History.MaxRows != 2000 {
		t.Errorf("max_rows = %d, want 2000", cfg.History.MaxRows)
	}
	if cfg.History.Compression != "zstd" {
		t.Errorf("compression = %q, want zstd", cfg.History.Compression)
	}
	if cfg.Replica.RequestInterval != 100*time.Millisecond {
		t.Errorf("request_interval = %s, want 100ms", cfg.Replica.RequestInterval)
	}
	// Keys absent from the file keep their defaults.
	if cfg.History.Cols != 80 {
		t.Errorf("cols = %d, want default 80", cfg.History.Cols)
	}
	if cfg.Viewer.Relay != "ws://relay.example/session" {
		t.Errorf("relay = %q", cfg.Viewer.Relay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileJSONCWithComments(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "termsync.jsonc", `{
  // Small scrollback for a constrained host.
  "history": {
    "max_rows": 300,
    "snapshot_interval": "2s",
  },
  "transport": {"ice_servers": ["stun:stun.example:3478"]},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.History.MaxRows != 300 {
		t.Errorf("max_rows = %d, want 300", cfg.History.MaxRows)
	}
	if cfg.History.SnapshotInterval != 2*time.Second {
		t.Errorf("snapshot_interval = %s, want 2s", cfg.History.SnapshotInterval)
	}
	if len(cfg.Transport.ICEServers) != 1 || cfg.Transport.ICEServers[0] != "stun:stun.example:3478" {
		t.Errorf("ice_servers = %v", cfg.Transport.ICEServers)
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bad.yaml", "history: [unterminated\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.History.Compression = "brotli"
	cfg.Replica.RequestRows = 1000
	cfg.Viewer.Connect = "127.0.0.1:7420"
	cfg.Viewer.Relay = "ws://127.0.0.1:7421/session"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "history.compression", "replica.request_rows", "at most one of"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidatePeerNeedsSignalURL(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Viewer.Peer = "termsync-host"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for peer without signal_url")
	}
	cfg.Transport.SignalURL = "http://relay.example"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
