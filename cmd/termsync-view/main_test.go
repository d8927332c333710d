// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "testing"

func TestSessionURL(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		raw, want string
		bad       bool
	}{
		{raw: "ws://box:8420", want: "ws://box:8420/session"},
		{raw: "https://box.example.com/", want: "wss://box.example.com/session"},
		{raw: "ws://box:8420/custom", want: "ws://box:8420/custom"},
		{raw: "tcp://box:7420", bad: true},
	} {
		got, err := sessionURL(test.raw)
		if test.bad {
			if err == nil {
				t.Errorf("sessionURL(%q) accepted a non-websocket scheme", test.raw)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("sessionURL(%q) = %q, %v; want %q", test.raw, got, err, test.want)
		}
	}
}

func TestHelpAndVersionExitCleanly(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"--version"}} {
		if err := run(args); err != nil {
			t.Errorf("run(%v) = %v", args, err)
		}
	}
}

func TestConflictingTargetsAreRejected(t *testing.T) {
	if err := run([]string{"--connect", "a:1", "--relay", "ws://b"}); err == nil {
		t.Error("two targets accepted")
	}
}
