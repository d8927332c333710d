// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogHandlerLevels(t *testing.T) {
	t.Parallel()
	handler := NewLogHandler(slog.LevelWarn)
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}
}

func TestLogHandlerWithoutProgramDrops(t *testing.T) {
	t.Parallel()
	handler := NewLogHandler(slog.LevelInfo)
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "lost", 0)
	if err := handler.Handle(context.Background(), record); err != nil {
		t.Errorf("Handle = %v, want nil before SetProgram", err)
	}
}

func TestAttrsFlattenGroups(t *testing.T) {
	t.Parallel()
	handler := NewLogHandler(slog.LevelInfo).
		WithAttrs([]slog.Attr{slog.String("peer", "host")}).(*LogHandler).
		WithGroup("link").(*LogHandler)

	parts := handler.attrs
	parts = appendAttr(parts, handler.prefix, slog.Int("generation", 2))
	parts = appendAttr(parts, handler.prefix, slog.Group("rtt", slog.Duration("p50", time.Millisecond)))
	parts = appendAttr(parts, handler.prefix, slog.Attr{})

	got := strings.Join(parts, ", ")
	want := "peer=host, link.generation=2, link.rtt.p50=1ms"
	if got != want {
		t.Errorf("attrs = %q, want %q", got, want)
	}
}
