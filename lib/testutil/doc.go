// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the
// select-with-timeout pattern so tests never block forever on a
// channel. [RequireEventually] polls a condition for the end-to-end
// convergence tests that run real host and viewer goroutines. These
// helpers are the only place tests use wall-clock timeouts; everything
// else runs on clock.Fake.
//
// This package imports nothing from the rest of the module so any
// package's tests can use it.
package testutil
