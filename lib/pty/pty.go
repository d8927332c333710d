// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import "errors"

// ErrUnsupported is returned by Start where PTYs are not implemented.
var ErrUnsupported = errors.New("pty: not supported on this system")
