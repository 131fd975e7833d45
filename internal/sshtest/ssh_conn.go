// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package sshtest

import (
	"context"
	"crypto/rsa"
	"os"
	"sync"
	"testing"

	"go.chromium.org/rtunnel/ssh"
)

var staticUserKey, staticHostKey *rsa.PrivateKey
var onceGenerateStaticKeys sync.Once

func staticKeys() (userKey, hostKey *rsa.PrivateKey) {
	onceGenerateStaticKeys.Do(func() {
		staticUserKey, staticHostKey = MustGenerateKeys()
	})
	return staticUserKey, staticHostKey
}

// ConnectToServer establishes a connection to srv using key.
// base is used as a base set of options.
func ConnectToServer(ctx context.Context, srv *SSHServer, key *rsa.PrivateKey, base *ssh.Options) (*ssh.Conn, error) {
	keyFile, err := WriteKey(key)
	if err != nil {
		return nil, err
	}
	defer os.Remove(keyFile)

	o := *base
	o.KeyFile = keyFile
	if err = ssh.ParseTarget(srv.Addr().String(), &o); err != nil {
		return nil, err
	}
	s, err := ssh.New(ctx, &o)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TestDataConn wraps data common to all tests.
// Whereas TestData only manages SSHServer it additionally owns a connection
// to the server.
type TestDataConn struct {
	Srv *SSHServer // local SSH server
	// Hst is a connection to srv.
	Hst *ssh.Conn

	// Ctx is used for performing operations using Hst.
	Ctx context.Context
	// Cancel cancels Ctx to simulate a timeout.
	Cancel func()
}

// NewTestDataConn sets up a local SSH server and a connection to it, and
// returns them together as a TestDataConn struct.
// Caller must call Close after use.
func NewTestDataConn(t *testing.T) *TestDataConn {
	td := &TestDataConn{}
	td.Ctx, td.Cancel = context.WithCancel(context.Background())

	userKey, hostKey := staticKeys()

	var err error
	if td.Srv, err = NewSSHServer(&userKey.PublicKey, hostKey); err != nil {
		t.Fatal(err)
	}

	if td.Hst, err = ConnectToServer(td.Ctx, td.Srv, userKey, &ssh.Options{}); err != nil {
		td.Srv.Close()
		t.Fatal(err)
	}

	return td
}

// Close releases resources associated with td.
func (td *TestDataConn) Close() {
	td.Srv.Close()
	td.Hst.Close(td.Ctx)
	td.Cancel()
}
