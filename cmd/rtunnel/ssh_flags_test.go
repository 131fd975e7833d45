// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestSSHFlagsDefaults(t *testing.T) {
	var s sshFlags
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	s.SetFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	if s.connectTimeout != 10*time.Second {
		t.Errorf("Default -timeout is %v; want %v", s.connectTimeout, 10*time.Second)
	}
	if s.connectRetries != 0 {
		t.Errorf("Default -retries is %d; want 0", s.connectRetries)
	}
	if s.retryInterval != 5*time.Second {
		t.Errorf("Default -retryinterval is %v; want %v", s.retryInterval, 5*time.Second)
	}
	if s.keepAlive != 30*time.Second {
		t.Errorf("Default -keepalive is %v; want %v", s.keepAlive, 30*time.Second)
	}
	if s.keepAliveRetries != 3 {
		t.Errorf("Default -keepaliveretries is %d; want 3", s.keepAliveRetries)
	}
	if s.reconnect != 0 {
		t.Errorf("Default -reconnect is %v; want 0", s.reconnect)
	}
	if s.keyDir != defaultKeyDir() {
		t.Errorf("Default -keydir is %q; want %q", s.keyDir, defaultKeyDir())
	}
}

func TestSSHFlagsParse(t *testing.T) {
	var s sshFlags
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	s.SetFlags(flags)
	args := []string{
		"-user", "crawler",
		"-keyfile", "/home/crawler/.ssh/id_ed25519",
		"-keydir", "/home/crawler/.ssh",
		"-proxycommand", "corp-tun %h %p",
		"-timeout", "3",
		"-retries", "2",
		"-retryinterval", "1",
		"-keepalive", "0",
		"-keepaliveretries", "5",
		"-reconnect", "7",
	}
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}

	if s.user != "crawler" {
		t.Errorf("-user is %q; want %q", s.user, "crawler")
	}
	if s.keyFile != "/home/crawler/.ssh/id_ed25519" {
		t.Errorf("-keyfile is %q; want %q", s.keyFile, "/home/crawler/.ssh/id_ed25519")
	}
	if s.proxyCommand != "corp-tun %h %p" {
		t.Errorf("-proxycommand is %q; want %q", s.proxyCommand, "corp-tun %h %p")
	}
	if s.connectTimeout != 3*time.Second {
		t.Errorf("-timeout is %v; want %v", s.connectTimeout, 3*time.Second)
	}
	if s.connectRetries != 2 {
		t.Errorf("-retries is %d; want 2", s.connectRetries)
	}
	if s.retryInterval != time.Second {
		t.Errorf("-retryinterval is %v; want %v", s.retryInterval, time.Second)
	}
	if s.keepAlive != 0 {
		t.Errorf("-keepalive is %v; want 0", s.keepAlive)
	}
	if s.keepAliveRetries != 5 {
		t.Errorf("-keepaliveretries is %d; want 5", s.keepAliveRetries)
	}
	if s.reconnect != 7*time.Second {
		t.Errorf("-reconnect is %v; want %v", s.reconnect, 7*time.Second)
	}
}

func TestSSHFlagsOptions(t *testing.T) {
	s := sshFlags{
		keyFile:        "/home/crawler/.ssh/id_ed25519",
		keyDir:         "/home/crawler/.ssh",
		proxyCommand:   "corp-tun %h %p",
		connectTimeout: 3 * time.Second,
		connectRetries: 2,
		retryInterval:  time.Second,
	}

	o, err := s.options(context.Background(), "crawler@build42:9222")
	if err != nil {
		t.Fatal("options failed: ", err)
	}
	if o.User != "crawler" {
		t.Errorf("User is %q; want %q", o.User, "crawler")
	}
	if o.Hostname != "build42:9222" {
		t.Errorf("Hostname is %q; want %q", o.Hostname, "build42:9222")
	}
	if o.KeyFile != s.keyFile {
		t.Errorf("KeyFile is %q; want %q", o.KeyFile, s.keyFile)
	}
	if o.KeyDir != s.keyDir {
		t.Errorf("KeyDir is %q; want %q", o.KeyDir, s.keyDir)
	}
	if o.ProxyCommand != s.proxyCommand {
		t.Errorf("ProxyCommand is %q; want %q", o.ProxyCommand, s.proxyCommand)
	}
	if o.ConnectTimeout != s.connectTimeout || o.ConnectRetries != s.connectRetries || o.ConnectRetryInterval != s.retryInterval {
		t.Errorf("Connect settings are %v/%d/%v; want %v/%d/%v", o.ConnectTimeout, o.ConnectRetries, o.ConnectRetryInterval,
			s.connectTimeout, s.connectRetries, s.retryInterval)
	}
	if o.WarnFunc == nil {
		t.Error("WarnFunc is nil")
	}

	// An explicit -user beats the user part of the target.
	s.user = "admin"
	if o, err = s.options(context.Background(), "crawler@build42"); err != nil {
		t.Fatal("options failed: ", err)
	}
	if o.User != "admin" {
		t.Errorf("User is %q; want %q", o.User, "admin")
	}
}
