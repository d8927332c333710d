// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/bureau-foundation/termsync/lib/pty"
)

// child is a running command: its merged output, its input and a way
// to wait for it.
type child struct {
	output io.Reader
	input  io.Writer
	wait   func() error
}

// startCommand runs command on a PTY of the history's size. Where PTYs
// are unsupported it falls back to pipes, which most interactive
// programs notice.
func startCommand(ctx context.Context, command []string, cols, lines int, logger *slog.Logger) (*child, error) {
	env := append(os.Environ(),
		"TERM=xterm-256color",
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", lines),
	)
	process, err := pty.Start(ctx, command, env, cols, lines)
	if err == nil {
		logger.Info("command started on a pty", "command", command[0], "pid", process.Pid())
		return &child{output: process, input: process, wait: process.Wait}, nil
	}
	if !errors.Is(err, pty.ErrUnsupported) {
		return nil, err
	}
	logger.Warn("no pty support, running the command on pipes", "command", command[0])
	return startPiped(ctx, command, env)
}

func startPiped(ctx context.Context, command []string, env []string) (*child, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = env
	input, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = writer
	cmd.Stderr = writer
	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}
	// The child holds its own copy; closing ours lets the reader see EOF
	// when the child exits.
	writer.Close()
	return &child{
		output: reader,
		input:  input,
		wait: func() error {
			err := cmd.Wait()
			reader.Close()
			return err
		},
	}, nil
}
