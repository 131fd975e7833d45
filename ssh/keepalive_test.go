// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
)

// useFakeClock replaces the package clock with a fake clock.
// restore must be called later to restore the original clock.
func useFakeClock() (fclk *fakeclock.FakeClock, restore func()) {
	fclk = fakeclock.NewFakeClock(time.Unix(0, 0))
	clk = fclk
	return fclk, func() { clk = clock.NewClock() }
}

// fakePing returns a ping function that blocks until an answer is sent on
// results or ctx is canceled.
func fakePing(results chan error) func(ctx context.Context, timeout time.Duration) error {
	return func(ctx context.Context, timeout time.Duration) error {
		select {
		case err := <-results:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitKeepAlive(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Minute):
		t.Fatal("Timed out waiting for the keepalive loop to return")
		return nil
	}
}

func TestKeepAliveDeclaresConnectionDead(t *testing.T) {
	fclk, restore := useFakeClock()
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = time.Minute
	results := make(chan error)
	done := make(chan error, 1)
	go func() {
		done <- keepAlive(ctx, interval, 2, fakePing(results))
	}()

	for i := 0; i < 2; i++ {
		fclk.WaitForWatcherAndIncrement(interval)
		results <- errors.New("no route to host")
	}

	err := waitKeepAlive(t, done)
	if err == nil {
		t.Fatal("keepAlive returned nil; want error")
	}
	if !strings.Contains(err.Error(), "connection dead after 2 keepalive failures") {
		t.Errorf("keepAlive returned %q; should mention 2 failures", err)
	}
	if !strings.Contains(err.Error(), "no route to host") {
		t.Errorf("keepAlive returned %q; should mention the ping error", err)
	}
}

func TestKeepAliveSuccessResetsFailures(t *testing.T) {
	fclk, restore := useFakeClock()
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const interval = time.Minute
	results := make(chan error)
	done := make(chan error, 1)
	go func() {
		done <- keepAlive(ctx, interval, 2, fakePing(results))
	}()

	// One failure, then a success resetting the count, then two failures.
	for _, res := range []error{errors.New("ping 1 failed"), nil, errors.New("ping 3 failed"), errors.New("ping 4 failed")} {
		select {
		case err := <-done:
			t.Fatalf("keepAlive returned early: %v", err)
		default:
		}
		fclk.WaitForWatcherAndIncrement(interval)
		results <- res
	}

	err := waitKeepAlive(t, done)
	if err == nil {
		t.Fatal("keepAlive returned nil; want error")
	}
	if !strings.Contains(err.Error(), "ping 4 failed") {
		t.Errorf("keepAlive returned %q; should mention the last ping error", err)
	}
}

func TestKeepAliveHonorsContext(t *testing.T) {
	_, restore := useFakeClock()
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan error)
	done := make(chan error, 1)
	go func() {
		done <- keepAlive(ctx, time.Minute, 3, fakePing(results))
	}()

	cancel()
	if err := waitKeepAlive(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("keepAlive returned %v; want %v", err, context.Canceled)
	}
}

func TestKeepAliveDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A non-positive interval disables pinging entirely.
	pinged := make(chan struct{}, 1)
	ping := func(ctx context.Context, timeout time.Duration) error {
		pinged <- struct{}{}
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- keepAlive(ctx, 0, 3, ping)
	}()

	cancel()
	if err := waitKeepAlive(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("keepAlive returned %v; want %v", err, context.Canceled)
	}
	select {
	case <-pinged:
		t.Error("keepAlive pinged the server with pinging disabled")
	default:
	}
}
