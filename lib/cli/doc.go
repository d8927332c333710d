// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the pieces shared by the termsync binaries: the
// command logger, categorized errors with operator hints, and the
// exit-code convention used by each main.
package cli
