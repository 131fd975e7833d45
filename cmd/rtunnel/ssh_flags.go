// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh/terminal"

	"go.chromium.org/rtunnel/errors"
	"go.chromium.org/rtunnel/internal/command"
	"go.chromium.org/rtunnel/internal/logging"
	"go.chromium.org/rtunnel/ssh"
)

// sshFlags holds the flags shared by subcommands that open an SSH session.
type sshFlags struct {
	user         string
	keyFile      string
	keyDir       string
	askPass      bool
	proxyCommand string

	connectTimeout time.Duration
	connectRetries int
	retryInterval  time.Duration

	keepAlive        time.Duration
	keepAliveRetries int
	reconnect        time.Duration
}

// defaultKeyDir returns the directory scanned for standard SSH keys.
func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh")
}

// SetFlags adds the shared SSH flags to f.
func (s *sshFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.user, "user", "", "username to log in as (default: user part of the target, or the current user)")
	f.StringVar(&s.keyFile, "keyfile", "", "path to SSH private key to use")
	f.StringVar(&s.keyDir, "keydir", defaultKeyDir(), "directory containing standard SSH keys")
	f.BoolVar(&s.askPass, "password", false, "prompt for a password (also used to decrypt -keyfile)")
	f.StringVar(&s.proxyCommand, "proxycommand", "", "command to use to connect to the server (%h and %p are replaced)")
	f.Var(command.NewDurationFlag(time.Second, &s.connectTimeout, 10*time.Second), "timeout", "connect timeout in seconds")
	f.IntVar(&s.connectRetries, "retries", 0, "number of times to retry a failed connection")
	f.Var(command.NewDurationFlag(time.Second, &s.retryInterval, 5*time.Second), "retryinterval", "minimum seconds between connection attempts")
	f.Var(command.NewDurationFlag(time.Second, &s.keepAlive, 30*time.Second), "keepalive", "seconds between liveness pings (0 disables)")
	f.IntVar(&s.keepAliveRetries, "keepaliveretries", 3, "consecutive failed pings before the session is considered dead")
	f.Var(command.NewDurationFlag(time.Second, &s.reconnect, 0), "reconnect", "seconds to wait before redialing after the tunnel fails (0 disables)")
}

// options builds SSH options for connecting to target, prompting for a
// password first if -password was given.
func (s *sshFlags) options(ctx context.Context, target string) (*ssh.Options, error) {
	o := ssh.Options{
		KeyFile:              s.keyFile,
		KeyDir:               s.keyDir,
		ProxyCommand:         s.proxyCommand,
		ConnectTimeout:       s.connectTimeout,
		ConnectRetries:       s.connectRetries,
		ConnectRetryInterval: s.retryInterval,
		WarnFunc:             func(msg string) { logging.Info(ctx, msg) },
	}
	if err := ssh.ParseTarget(target, &o); err != nil {
		return nil, err
	}
	if s.user != "" {
		o.User = s.user
	}
	if s.askPass {
		pw, err := readPassword(fmt.Sprintf("%s@%s's password: ", o.User, o.Hostname))
		if err != nil {
			return nil, err
		}
		o.Password = pw
	}
	return &o, nil
}

// readPassword prompts for a password on the terminal without echoing it.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; can't prompt for a password")
	}
	os.Stdout.WriteString(prompt)
	b, err := terminal.ReadPassword(fd)
	os.Stdout.WriteString("\n")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
