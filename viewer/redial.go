// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewer

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/termsync/transport"
)

// Dialer opens a new link to the host.
type Dialer func(ctx context.Context) (*transport.Link, error)

const (
	minRedialDelay = 250 * time.Millisecond
	maxRedialDelay = 10 * time.Second
)

// RunWithRedial runs the client over links from dial, dialing again
// with exponential backoff whenever a link fails. It returns nil when
// the host ends the session, ctx.Err() when ctx is done, and the last
// error once a dial fails after a link never came up at all.
func (c *Client) RunWithRedial(ctx context.Context, dial Dialer) error {
	delay := minRedialDelay
	connected := false
	for {
		link, err := dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !connected {
				return err
			}
			c.logger.Warn("redial failed", "error", err, "retry_in", delay)
		} else {
			connected = true
			started := c.config.Clock.Now()
			err = c.Run(ctx, link)
			var closed *ClosedError
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.As(err, &closed) && closed.Final():
				return nil
			}
			if c.config.Clock.Now().Sub(started) > maxRedialDelay {
				delay = minRedialDelay
			}
			c.logger.Warn("link lost, redialing", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.config.Clock.After(delay):
		}
		delay = min(delay*2, maxRedialDelay)
	}
}
