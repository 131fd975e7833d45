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

// remoteCmd implements subcommands.Command to open a reverse tunnel.
type remoteCmd struct {
	ssh  sshFlags
	port int
	bind string
	dest string
}

var _ = subcommands.Command(&remoteCmd{})

func newRemoteCmd() *remoteCmd {
	return &remoteCmd{}
}

func (*remoteCmd) Name() string     { return "remote" }
func (*remoteCmd) Synopsis() string { return "forward a port on the SSH server to a local destination" }
func (*remoteCmd) Usage() string {
	return `Usage: remote [flag]... <target>

Description:
    Opens an SSH session to the target and asks the server to listen on
    -bind:-port (like OpenSSH -R). Every connection accepted there is
    forwarded back over the session and relayed to -dest.

    The tunnel runs until the session dies or the process is interrupted.
    With -reconnect the session is redialed after failures instead.

Target:
    The target is an SSH connection spec of the form "[user@]host[:port]".

Flag:
`
}

func (r *remoteCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.port, "port", 4000, "TCP port to open on the SSH server (0 lets the server pick)")
	f.StringVar(&r.bind, "bind", profile.DefaultBind, "address the server listens on (\"0.0.0.0\" for all interfaces)")
	f.StringVar(&r.dest, "dest", "", "host:port connections are forwarded to (required)")
	r.ssh.SetFlags(f)
}

func (r *remoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Misuse is reported on the flag set's output (stderr by default) so it
	// stays visible when -quiet drops the logger.
	if len(f.Args()) != 1 {
		fmt.Fprint(f.Output(), "Missing target.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}
	if r.dest == "" {
		fmt.Fprint(f.Output(), "-dest is required.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}

	t := profile.Tunnel{Type: profile.TypeRemote, Bind: r.bind, Port: r.port, Dest: r.dest}
	if err := t.Validate(); err != nil {
		fmt.Fprintf(f.Output(), "%v\n\n%s", err, r.Usage())
		return subcommands.ExitUsageError
	}

	opts, err := r.ssh.options(ctx, f.Arg(0))
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	if err := runReconnecting(ctx, opts, []profile.Tunnel{t}, &r.ssh); err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	return subcommands.ExitSuccess
}
