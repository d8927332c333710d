// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the process logger at the given level. When
// stderr is a terminal it uses slog.TextHandler for people; otherwise
// slog.JSONHandler so piped output stays machine-parseable.
func NewCommandLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

// NewFileLogger writes JSON records to path, for processes whose
// stderr is owned by a full-screen display. The returned function
// closes the file.
func NewFileLogger(path string, level slog.Level) (*slog.Logger, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return newLogger(file, false, level), func() { file.Close() }, nil
}

func newLogger(w io.Writer, human bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if human {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
