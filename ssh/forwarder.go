// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"io"
	"net"
	"sync"
)

// Forwarder forwards TCP connections between a listener and connections
// opened by a dialing function. The listener may be local (forwarding local
// connections to a remote host) or remote (a reverse tunnel).
//
// A pictoral explanation of a reverse tunnel:
//
//	          Remote           |    SSH Host    |    Local
//	---------------------------+----------------+-------------
//	[client] <- TCP -> [sshd] <- SSH -> [Forwarder] <- TCP -> [server]
type Forwarder struct {
	connFunc func() (net.Conn, error) // opens conns on the dialing side
	ls       net.Listener             // listens for incoming conns

	errFunc func(error) // called when error is encountered while forwarding; may be nil
	mutex   sync.Mutex  // protects errFunc
}

// newForwarder returns a Forwarder that services ls and calls connFunc to open a
// counterpart connection in response to each incoming connection. Traffic is copied
// between the two connections.
//
// If non-nil, errFunc will be invoked asynchronously on a goroutine with connection or forwarding errors.
func newForwarder(ls net.Listener, connFunc func() (net.Conn, error), errFunc func(error)) (*Forwarder, error) {
	f := Forwarder{
		connFunc: connFunc,
		ls:       ls,
		errFunc:  errFunc,
	}

	// Start a goroutine that services the listener and launches
	// a new goroutine to handle each incoming connection.
	go func() {
		for {
			local, err := f.ls.Accept()
			if err != nil {
				break
			}
			go func() {
				if err := f.handleConn(local); err != nil {
					f.mutex.Lock()
					if f.errFunc != nil {
						f.errFunc(err)
					}
					f.mutex.Unlock()
				}
			}()
		}
	}()

	return &f, nil
}

// Close stops listening for incoming connections.
func (f *Forwarder) Close() error {
	f.mutex.Lock()
	f.errFunc = nil
	f.mutex.Unlock()
	return f.ls.Close()
}

// ListenAddr returns the address used to listen for connections.
func (f *Forwarder) ListenAddr() net.Addr {
	return f.ls.Addr()
}

// handleConn establishes a new counterpart connection using connFunc
// and copies data between it and conn. It closes conn before returning.
func (f *Forwarder) handleConn(conn net.Conn) error {
	defer conn.Close()

	other, err := f.connFunc()
	if err != nil {
		return err
	}
	defer other.Close()

	ch := make(chan error)
	go func() {
		_, err := io.Copy(conn, other)
		ch <- err
	}()
	go func() {
		_, err := io.Copy(other, conn)
		ch <- err
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-ch; err != io.EOF && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
