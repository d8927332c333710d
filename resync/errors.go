// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resync

import "errors"

// ErrDesyncDetected means the receiver found a version gap. The
// ResyncRequest returned alongside it must be sent to the host.
var ErrDesyncDetected = errors.New("resync: desync detected")
