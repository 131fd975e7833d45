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

// runCmd implements subcommands.Command to run the tunnels described by a
// profile file.
type runCmd struct {
	ssh    sshFlags
	config string
}

var _ = subcommands.Command(&runCmd{})

func newRunCmd() *runCmd {
	return &runCmd{}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the tunnels described by a profile file" }
func (*runCmd) Usage() string {
	return `Usage: run -config <file> [flag]...

Description:
    Reads a YAML profile describing an SSH target and any number of remote
    and local tunnels, opens one SSH session, and runs all tunnels over it.
    Connection flags fill in values the profile omits.

    A profile looks like:

        target: user@host
        keyfile: /path/to/key
        tunnels:
          - type: remote
            port: 4000
            dest: localhost:8080
          - type: local
            port: 5432
            dest: db.internal:5432

Flag:
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.config, "config", "", "path to the YAML profile to run (required)")
	r.ssh.SetFlags(f)
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	// Misuse is reported on the flag set's output (stderr by default) so it
	// stays visible when -quiet drops the logger.
	if r.config == "" {
		fmt.Fprint(f.Output(), "-config is required.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}
	if len(f.Args()) != 0 {
		fmt.Fprint(f.Output(), "The target comes from the profile; no arguments expected.\n\n"+r.Usage())
		return subcommands.ExitUsageError
	}

	p, err := profile.Read(r.config)
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}

	opts, err := r.ssh.options(ctx, p.Target)
	if err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	// The profile is the more specific document; its fields beat the flags.
	command.CopyFieldIfNonZero(&p.KeyFile, &opts.KeyFile)
	command.CopyFieldIfNonZero(&p.KeyDir, &opts.KeyDir)
	command.CopyFieldIfNonZero(&p.ProxyCommand, &opts.ProxyCommand)

	if err := runReconnecting(ctx, opts, p.Tunnels, &r.ssh); err != nil {
		return subcommands.ExitStatus(command.WriteError(os.Stderr, err))
	}
	return subcommands.ExitSuccess
}
