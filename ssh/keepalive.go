// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"

	"go.chromium.org/rtunnel/errors"
)

// clk is replaced in unit tests to use fake clocks.
var clk = clock.NewClock()

// KeepAlive periodically pings the SSH server to detect a dead connection.
// It blocks until the server fails to answer maxFailures consecutive pings
// or ctx is canceled, and returns an error describing why it stopped.
// Each ping is allowed up to interval to complete, and a successful ping
// resets the failure count. An interval of zero or less disables pinging;
// KeepAlive then blocks until ctx is canceled.
func (s *Conn) KeepAlive(ctx context.Context, interval time.Duration, maxFailures int) error {
	return keepAlive(ctx, interval, maxFailures, s.Ping)
}

// keepAlive runs the ping loop using the given ping function.
func keepAlive(ctx context.Context, interval time.Duration, maxFailures int, ping func(context.Context, time.Duration) error) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	if maxFailures < 1 {
		maxFailures = 1
	}

	t := clk.NewTicker(interval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-t.C():
			if err := ping(ctx, interval); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				if failures >= maxFailures {
					return errors.Wrapf(err, "connection dead after %d keepalive failures", failures)
				}
			} else {
				failures = 0
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
