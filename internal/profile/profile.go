// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package profile reads YAML profiles describing an SSH target and the
// tunnels to run against it.
package profile

import (
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v2"

	"go.chromium.org/rtunnel/errors"
)

// Tunnel types accepted in profiles.
const (
	TypeRemote = "remote" // listener on the SSH server, destination local
	TypeLocal  = "local"  // listener on this host, destination resolved remotely
)

// DefaultBind is the address a tunnel listens on when the profile doesn't
// name one.
const DefaultBind = "127.0.0.1"

// Tunnel describes a single port forwarding.
type Tunnel struct {
	// Type is TypeRemote or TypeLocal.
	Type string `yaml:"type"`
	// Bind is the address to listen on. It defaults to DefaultBind and must
	// be an IP literal for remote tunnels.
	Bind string `yaml:"bind"`
	// Port is the port to listen on. 0 lets the listening side pick one.
	Port int `yaml:"port"`
	// Dest is the host:port connections are forwarded to.
	Dest string `yaml:"dest"`
}

// Profile describes an SSH target and the tunnels to run against it.
type Profile struct {
	// Target is the SSH server, in "[user@]host[:port]" form.
	Target string `yaml:"target"`
	// KeyFile is an optional path to an SSH private key.
	KeyFile string `yaml:"keyfile"`
	// KeyDir is an optional path to a directory containing standard SSH keys.
	KeyDir string `yaml:"keydir"`
	// ProxyCommand is an optional command used to reach the server.
	ProxyCommand string `yaml:"proxycommand"`
	// Tunnels lists the tunnels to run. At least one is required.
	Tunnels []Tunnel `yaml:"tunnels"`
}

// Read reads and validates the profile at path.
// Unknown YAML fields are rejected. The returned tunnels are sorted by
// (type, port) so startup order doesn't depend on the file layout.
func Read(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.UnmarshalStrict(b, &p); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := p.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid profile %s", path)
	}
	slices.SortFunc(p.Tunnels, func(a, b Tunnel) int {
		if a.Type != b.Type {
			return strings.Compare(a.Type, b.Type)
		}
		return a.Port - b.Port
	})
	return &p, nil
}

// Validate checks the tunnel's type and addresses.
func (t *Tunnel) Validate() error {
	if !slices.Contains([]string{TypeRemote, TypeLocal}, t.Type) {
		return errors.Errorf("unknown type %q", t.Type)
	}
	if t.Type == TypeRemote && net.ParseIP(t.Bind) == nil {
		return errors.Errorf("remote bind address %q is not an IP literal", t.Bind)
	}
	if t.Port < 0 || t.Port > 65535 {
		return errors.Errorf("port %d out of range", t.Port)
	}
	if _, _, err := net.SplitHostPort(t.Dest); err != nil {
		return errors.Wrapf(err, "bad destination %q", t.Dest)
	}
	return nil
}

// validate checks p and fills in tunnel defaults.
func (p *Profile) validate() error {
	if p.Target == "" {
		return errors.New("target is required")
	}
	if len(p.Tunnels) == 0 {
		return errors.New("at least one tunnel is required")
	}

	seen := make(map[string]struct{})
	for i := range p.Tunnels {
		t := &p.Tunnels[i]
		if t.Bind == "" {
			t.Bind = DefaultBind
		}
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "tunnel %d", i)
		}

		// Two tunnels can't listen on the same address unless the port is
		// picked by the listening side.
		if t.Port != 0 {
			key := t.Type + " " + net.JoinHostPort(t.Bind, strconv.Itoa(t.Port))
			if _, ok := seen[key]; ok {
				return errors.Errorf("tunnel %d: duplicate %s tunnel on %s", i, t.Type, net.JoinHostPort(t.Bind, strconv.Itoa(t.Port)))
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}
