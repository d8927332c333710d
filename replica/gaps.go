// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

// NextRequest returns a backfill request for the lowest contiguous
// unresolved span between Lookahead rows above the viewport and the
// viewport bottom. It returns false when nothing is unresolved, when
// MaxPendingRequests are in flight, or when pacing holds the request
// back.
func (c *Cache) NextRequest() (protocol.RequestBackfill, bool) {
	now := c.config.Clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) >= c.config.MaxPendingRequests || now.Before(c.retryAt) {
		return protocol.RequestBackfill{}, false
	}
	top, bottom := c.viewRangeLocked()
	low := top - min(top, terminal.RowID(c.config.Lookahead))
	low = max(low, c.knownBase)
	if c.anchored && c.anchor < low {
		low = c.anchor
	}

	start := low
	for start < bottom && !c.unresolvedLocked(start) {
		start++
	}
	if start >= bottom {
		// Everything from the re-anchor point up is resolved.
		c.anchored = false
		return protocol.RequestBackfill{}, false
	}
	if !c.limiter.AllowN(now, 1) {
		return protocol.RequestBackfill{}, false
	}

	end := start
	for end < bottom && int(end-start) < c.config.RequestRows && c.unresolvedLocked(end) {
		c.slotLocked(end, 0)
		end++
	}
	c.nextID++
	r := &request{id: c.nextID, start: start, end: end, sentAt: now, attempts: 1}
	c.pending[r.id] = r
	c.logger.Debug("requesting backfill",
		"request_id", r.id,
		"start_row", start,
		"rows", int(end-start),
	)
	return protocol.RequestBackfill{RequestID: r.id, StartRow: start, MaxRows: int(end - start)}, true
}

// unresolvedLocked reports whether row has no content, is not known to
// be missing and is not covered by a request in flight.
func (c *Cache) unresolvedLocked(row terminal.RowID) bool {
	for _, r := range c.pending {
		if row >= r.start && row < r.end {
			return false
		}
	}
	if s, ok := c.slots[row]; ok {
		return s.state == SlotPending
	}
	if row < c.knownBase {
		return c.anchored && row >= c.anchor
	}
	return true
}

// Expire handles requests unanswered for RequestTimeout. Each is
// reissued under a new id until it has been sent MaxAttempts times;
// after that its rows are marked Missing locally. It returns the
// requests to resend.
func (c *Cache) Expire() []protocol.RequestBackfill {
	now := c.config.Clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var retries []protocol.RequestBackfill
	expired := false
	for _, id := range c.pendingIDsLocked() {
		r := c.pending[id]
		if now.Sub(r.sentAt) < c.config.RequestTimeout {
			continue
		}
		delete(c.pending, id)
		c.config.Metrics.BackfillTimedOut()
		expired = true

		if r.attempts >= c.config.MaxAttempts {
			missing := 0
			for row := r.start; row < r.end; row++ {
				s := c.slotLocked(row, 0)
				if s.state == SlotPending {
					s.state = SlotMissing
					missing++
				}
			}
			c.config.Metrics.RowsMissing(missing)
			c.logger.Warn("backfill abandoned after retries",
				"start_row", r.start,
				"rows", int(r.end-r.start),
				"attempts", r.attempts,
			)
			continue
		}

		c.nextID++
		retry := &request{id: c.nextID, start: r.start, end: r.end, sentAt: now, attempts: r.attempts + 1}
		c.pending[retry.id] = retry
		retries = append(retries, protocol.RequestBackfill{
			RequestID: retry.id,
			StartRow:  retry.start,
			MaxRows:   int(retry.end - retry.start),
		})
	}
	if expired {
		c.notifyLocked()
	}
	return retries
}
