// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package viewui draws a replicated terminal with bubbletea.
//
// [Model] renders the viewport of a [Source] (normally a
// *replica.Cache), redrawing whenever the source signals a change.
// Scroll keys move through history; every other key is encoded back
// into terminal input and handed to the input sink, so the viewer
// behaves like the terminal it mirrors. Rows still in flight render as
// a faint placeholder and rows the host has evicted as a shaded one.
//
// [LogHandler] routes slog records into the status line so that
// logging does not tear the alternate screen.
package viewui
