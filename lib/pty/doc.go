// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty runs a command on a freshly allocated pseudo-terminal, so
// programs that check isatty (shells, pagers, anything that colors its
// output) behave as they would for a person.
//
// Allocation uses the Linux devpts interface directly; on other
// systems [Start] returns [ErrUnsupported].
package pty
