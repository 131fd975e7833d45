// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/rtunnel/errors"
	"go.chromium.org/rtunnel/internal/logging"
	"go.chromium.org/rtunnel/internal/profile"
	"go.chromium.org/rtunnel/ssh"
)

// runReconnecting runs the tunnels described by tunnels against opts,
// redialing after the session dies when s.reconnect is positive. It blocks
// until the tunnels fail permanently or ctx is canceled.
func runReconnecting(ctx context.Context, opts *ssh.Options, tunnels []profile.Tunnel, s *sshFlags) error {
	for {
		err := runTunnels(ctx, opts, tunnels, s)
		if s.reconnect <= 0 || ctx.Err() != nil {
			return err
		}
		logging.Infof(ctx, "Tunnel down: %v; reconnecting in %v", err, s.reconnect)
		select {
		case <-time.After(s.reconnect):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runTunnels opens one SSH session to opts.Hostname and runs all tunnels
// over it until the session dies or ctx is canceled. The returned error
// describes the first failure.
func runTunnels(ctx context.Context, opts *ssh.Options, tunnels []profile.Tunnel, s *sshFlags) error {
	logging.Infof(ctx, "Connecting to %s", opts.Hostname)
	conn, err := ssh.New(ctx, opts)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", opts.Hostname)
	}
	defer conn.Close(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := range tunnels {
		t := &tunnels[i]
		g.Go(func() error { return runTunnel(gctx, conn, opts, t) })
	}
	g.Go(func() error { return conn.KeepAlive(gctx, s.keepAlive, s.keepAliveRetries) })
	g.Go(func() error {
		if err := conn.Wait(); err != nil {
			return errors.Wrap(err, "connection closed")
		}
		return errors.New("connection closed")
	})
	// Close the connection once the group starts winding down so that Wait
	// and the forwarded channels unblock.
	g.Go(func() error {
		<-gctx.Done()
		conn.Close(context.Background())
		return nil
	})
	return g.Wait()
}

// runTunnel opens a single tunnel over conn and blocks until ctx is canceled.
func runTunnel(ctx context.Context, conn *ssh.Conn, opts *ssh.Options, t *profile.Tunnel) error {
	ctx = logging.SetLogPrefix(ctx, fmt.Sprintf("[%s %d] ", t.Type, t.Port))

	errFunc := func(err error) { logging.Infof(ctx, "Forwarding error: %v", err) }
	addr := net.JoinHostPort(t.Bind, strconv.Itoa(t.Port))

	var fwd *ssh.Forwarder
	var err error
	switch t.Type {
	case profile.TypeRemote:
		fwd, err = conn.ForwardRemoteToLocal("tcp", addr, t.Dest, errFunc)
	case profile.TypeLocal:
		fwd, err = conn.ForwardLocalToRemote("tcp", addr, t.Dest, errFunc)
	default:
		return errors.Errorf("unknown tunnel type %q", t.Type)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open %s tunnel on %s", t.Type, addr)
	}
	defer fwd.Close()

	switch t.Type {
	case profile.TypeRemote:
		logging.Infof(ctx, "Forwarding %s on %s to %s", fwd.ListenAddr(), opts.Hostname, t.Dest)
		logReachableAddress(ctx, conn, fwd.ListenAddr())
	case profile.TypeLocal:
		logging.Infof(ctx, "Forwarding %s to %s on %s", fwd.ListenAddr(), t.Dest, opts.Hostname)
	}

	<-ctx.Done()
	return ctx.Err()
}

// logReachableAddress logs the address under which a remote listener bound
// to the wildcard address can be reached, i.e. the SSH server's host with
// the listener's port.
func logReachableAddress(ctx context.Context, conn *ssh.Conn, listenAddr net.Addr) {
	host, portStr, err := net.SplitHostPort(listenAddr.String())
	if err != nil {
		return
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return
	}
	if addr, err := conn.GenerateRemoteAddress(port); err == nil {
		logging.Infof(ctx, "Tunnel reachable at %s", addr)
	}
}
