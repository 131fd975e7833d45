// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/rtunnel/testutil"
)

// writeProfile writes data to a profile file in a temp dir and returns its path.
func writeProfile(t *testing.T, data string) string {
	t.Helper()
	td := testutil.TempDir(t)
	t.Cleanup(func() { os.RemoveAll(td) })
	if err := testutil.WriteFiles(td, map[string]string{"profile.yaml": data}); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(td, "profile.yaml")
}

func TestRead(t *testing.T) {
	path := writeProfile(t, `target: crawler@build42:9222
keyfile: /home/crawler/.ssh/id_ed25519
proxycommand: corp-tun %h %p
tunnels:
  - type: remote
    port: 9100
    dest: localhost:3000
  - type: local
    bind: 0.0.0.0
    port: 8080
    dest: db.internal:5432
  - type: remote
    bind: "::1"
    port: 4000
    dest: localhost:8080
`)

	p, err := Read(path)
	if err != nil {
		t.Fatal("Read failed: ", err)
	}

	want := Profile{
		Target:       "crawler@build42:9222",
		KeyFile:      "/home/crawler/.ssh/id_ed25519",
		ProxyCommand: "corp-tun %h %p",
		Tunnels: []Tunnel{
			{Type: TypeLocal, Bind: "0.0.0.0", Port: 8080, Dest: "db.internal:5432"},
			{Type: TypeRemote, Bind: "::1", Port: 4000, Dest: "localhost:8080"},
			{Type: TypeRemote, Bind: DefaultBind, Port: 9100, Dest: "localhost:3000"},
		},
	}
	if diff := cmp.Diff(want, *p); diff != "" {
		t.Errorf("Read returned unexpected profile (-want +got):\n%s", diff)
	}
}

func TestReadEphemeralPorts(t *testing.T) {
	// Port 0 means "pick one", so two such tunnels don't collide.
	path := writeProfile(t, `target: build42
tunnels:
  - type: remote
    port: 0
    dest: localhost:3000
  - type: remote
    port: 0
    dest: localhost:8080
`)
	if _, err := Read(path); err != nil {
		t.Error("Read rejected two port-0 tunnels: ", err)
	}
}

func TestReadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"missing target", `tunnels:
  - type: remote
    port: 4000
    dest: localhost:8080
`},
		{"no tunnels", `target: build42
`},
		{"unknown type", `target: build42
tunnels:
  - type: socks
    port: 4000
    dest: localhost:8080
`},
		{"port out of range", `target: build42
tunnels:
  - type: remote
    port: 70000
    dest: localhost:8080
`},
		{"negative port", `target: build42
tunnels:
  - type: remote
    port: -1
    dest: localhost:8080
`},
		{"destination without port", `target: build42
tunnels:
  - type: remote
    port: 4000
    dest: localhost
`},
		{"duplicate listeners", `target: build42
tunnels:
  - type: remote
    port: 4000
    dest: localhost:8080
  - type: remote
    port: 4000
    dest: localhost:3000
`},
		{"remote bind not an IP", `target: build42
tunnels:
  - type: remote
    bind: localhost
    port: 4000
    dest: localhost:8080
`},
		{"unknown field", `target: build42
compression: true
tunnels:
  - type: remote
    port: 4000
    dest: localhost:8080
`},
	} {
		path := writeProfile(t, tc.data)
		if _, err := Read(path); err == nil {
			t.Errorf("Read unexpectedly succeeded for profile with %s", tc.name)
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	td := testutil.TempDir(t)
	defer os.RemoveAll(td)
	if _, err := Read(filepath.Join(td, "nope.yaml")); err == nil {
		t.Error("Read unexpectedly succeeded for a missing file")
	}
}
