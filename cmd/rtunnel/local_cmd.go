// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"go.chromium.org/rtunnel/internal/command"
	"go.chromium.org/rtunnel/internal/profile"
)

// localCmd implements subcommands.Command to forward a local port to a
// destination resolved by the SSH server.
type localCmd struct {
	ssh  sshFlags
	port int
	bind string
	dest string
}

var _ = subcommands.Command(&localCmd{})

func newLocalCmd() *localCmd {
	return &localCmd{}
}

func (*localCmd) Name() string     { return "local" }
func (*localCmd) Synopsis() string { return "forward a local port to a destination behind the SSH server" }
func (*localCmd) Usage() string {
	return `Usage: local [flag]... <target>

Description:
    Opens an SSH session to the target and listens on -bind:-port locally
    (like OpenSSH -L). Every connection accepted there is forwarded over
    the session to -dest, which is resolved by the SSH server.

    The tunnel runs until the session dies or the process is interrupted.
    With -reconnect the session is redialed after failures instead.

Target:
    The target is an SSH connection spec of the form "[user@]host[:port]".

Flag:
`
}

func (l *localCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&l.port, "port", 4000, "local TCP port to listen on (0 picks a free one)")
	f.StringVar(&l.bind, "bind", profile.DefaultBind, "address to listen on (\"0.0.0.0\" for all interfaces)")
	f.StringVar(&l.dest, "dest", "", "host:port connections are forwarded to, resolved remotely (required)")
	l.ssh.SetFlags(f)
}

func (l *localCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Misuse is reported on the flag set's output (stderr by default) so it
	// stays visible when -quiet drops the logger.
	if len(f.Args()) != 1 {
		fmt.Fprint(f.Output(), "Missing target.\n\n"+l.Usage())
		return subcommands.ExitUsageError
	}
	if l.dest == "" {
		fmt.Fprint(f.Output(), "-dest is required.\n\n"+l.Usage())
		return subcommands.ExitUsageError
	}

	t := profile.Tunnel{Type: profile.TypeLocal, Bind: l.bind, Port: l.port, Dest: l.dest}
	if err := t.Validate(); err != nil {
		fmt.Fprintf(f.Output(), "%v\n\n%s", err, l.Usage())
		return subcommands.ExitUsageError
	}

	opts, err := l.ssh.options(ctx, f.Arg(0))
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	if err := runReconnecting(ctx, opts, []profile.Tunnel{t}, &l.ssh); err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	return subcommands.ExitSuccess
}
