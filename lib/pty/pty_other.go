// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package pty

import "context"

// Process is unavailable on this system.
type Process struct{}

// Start always fails with ErrUnsupported.
func Start(context.Context, []string, []string, int, int) (*Process, error) {
	return nil, ErrUnsupported
}

func (*Process) Read([]byte) (int, error)  { return 0, ErrUnsupported }
func (*Process) Write([]byte) (int, error) { return 0, ErrUnsupported }
func (*Process) Resize(int, int) error     { return ErrUnsupported }
func (*Process) Wait() error               { return ErrUnsupported }
func (*Process) Pid() int                  { return 0 }
