// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestPipedCommandMergesOutputAndTakesInput(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	process, err := startPiped(context.Background(), []string{"sh", "-c", "read line; echo out $line; echo err $line >&2"}, os.Environ())
	if err != nil {
		t.Fatalf("startPiped: %v", err)
	}
	if _, err := process.input.Write([]byte("hello\n")); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	output, err := io.ReadAll(process.output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if err := process.wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	got := string(output)
	if !strings.Contains(got, "out hello") || !strings.Contains(got, "err hello") {
		t.Errorf("output = %q, want both streams", got)
	}
}
