// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sshtest provides support code for testing SSH connections and
// port forwarding.
package sshtest

import (
	"bytes"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"go.chromium.org/rtunnel/errors"
)

const (
	// sshMsgIgnore is the SSH global message sent to ping the server.
	// See RFC 4253 11.2, "Ignored Data Message".
	sshMsgIgnore = "SSH_MSG_IGNORE"

	// sshMsgTCPIPForward is the SSH global message sent to request TCP/IP
	// reverse forwarding.
	// See RFC 4254 7.1, "Requesting Port Forwarding".
	sshMsgTCPIPForward = "tcpip-forward"

	// sshMsgCancelTCPIPForward is the SSH global message sent to cancel a
	// previously requested TCP/IP reverse forwarding.
	sshMsgCancelTCPIPForward = "cancel-tcpip-forward"
)

// SSHServer implements an SSH server based on the ssh package's NewServerConn
// example that listens on localhost and performs authentication via an RSA keypair.
//
// Pings (using SSH_MSG_IGNORE), reverse forwarding requests ("tcpip-forward"
// and "cancel-tcpip-forward") and "direct-tcpip" channels are supported.
type SSHServer struct {
	cfg      *ssh.ServerConfig
	listener net.Listener

	rejectConns int64 // number of connections to reject (used as counter)

	mu          sync.Mutex
	answerPings bool   // if true, ping requests will be answered
	password    string // if non-empty, accepted for password authentication
}

// newServerConfig returns a new configuration for a server using host key hk
// and accepting public key authentication using pk.
func (s *SSHServer) newServerConfig(pk *rsa.PublicKey, hk *rsa.PrivateKey) (*ssh.ServerConfig, error) {
	pub, err := ssh.NewPublicKey(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SSH public key: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			if subtle.ConstantTimeCompare(pubKey.Marshal(), pub.Marshal()) == 1 {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			s.mu.Lock()
			pw := s.password
			s.mu.Unlock()
			if pw != "" && subtle.ConstantTimeCompare(password, []byte(pw)) == 1 {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}

	signer, err := ssh.NewSignerFromKey(hk)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host signer: %v", err)
	}
	cfg.AddHostKey(signer)

	return cfg, nil
}

// NewSSHServer creates an SSH server using host key hk and accepting public key authentication using pk.
// A random port bound to the local IPv4 interface is used.
func NewSSHServer(pk *rsa.PublicKey, hk *rsa.PrivateKey) (*SSHServer, error) {
	s := &SSHServer{answerPings: true}
	cfg, err := s.newServerConfig(pk, hk)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	ls, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, err
	}
	s.listener = ls

	go func() {
		for {
			conn, err := ls.Accept()
			if err != nil {
				return
			}
			go func() {
				if err := s.handleConn(conn); err != nil {
					log.Print("Got error while handling connection: ", err)
				}
			}()
		}
	}()

	return s, nil
}

// Close instructs the server to stop listening for connections.
func (s *SSHServer) Close() error {
	return s.listener.Close()
}

// AnswerPings controls whether the server should reply to SSH_MSG_IGNORE ping requests or ignore them.
func (s *SSHServer) AnswerPings(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerPings = v
}

// RejectConns instructs the server to reject the next n connections.
func (s *SSHServer) RejectConns(n int) {
	atomic.StoreInt64(&s.rejectConns, int64(n))
}

// AllowPassword instructs the server to additionally accept password
// authentication using pw. An empty string disables password authentication.
func (s *SSHServer) AllowPassword(pw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = pw
}

// Addr returns the address on which the server is listening.
func (s *SSHServer) Addr() net.Addr {
	if s.listener == nil {
		panic("Server not listening")
	}
	return s.listener.Addr()
}

func splitHostPort(addr string) (string, uint32, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to split host and port")
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to parse port number")
	}
	return host, uint32(p), err
}

// forwardKey identifies a reverse forwarding listener by its requested
// bind address and actual port.
func forwardKey(bindAddr string, port int) string {
	return net.JoinHostPort(bindAddr, strconv.Itoa(port))
}

// handleForward opens a "forwarded-tcpip" channel back to the client for an
// incoming connection src accepted on a reverse forwarding listener and
// relays data between the two. bindAddr and bindPort identify the forwarding
// as registered by the client; the client rejects channels that report an
// unknown address.
func handleForward(sConn *ssh.ServerConn, bindAddr string, bindPort int, src net.Conn) error {
	origHost, origPort, err := splitHostPort(src.RemoteAddr().String())
	if err != nil {
		return err
	}
	m := struct {
		// RFC4254 SSH Connection Protocol  7.2. TCP/IP Forwarding Channels
		// https://tools.ietf.org/html/rfc4254#section-7.2
		addressThatWasConnected string
		portThatWasConnected    uint32
		originatorIPAddress     string
		originatorPort          uint32
	}{bindAddr, uint32(bindPort), origHost, origPort}
	fwdChannel, _, err := sConn.OpenChannel("forwarded-tcpip", ssh.Marshal(m))
	if err != nil {
		return err
	}

	ch := make(chan error)
	go func() {
		_, err := io.Copy(fwdChannel, src)
		ch <- err
	}()
	go func() {
		_, err := io.Copy(src, fwdChannel)
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

// handleConn services a new incoming connection on conn.
func (s *SSHServer) handleConn(conn net.Conn) error {
	defer conn.Close()

	if atomic.AddInt64(&s.rejectConns, -1) >= 0 {
		return errors.New("intentionally rejecting")
	}

	sConn, chans, reqs, err := ssh.NewServerConn(conn, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to handshake: %v", err)
	}

	go s.handleGlobalRequests(sConn, reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "direct-tcpip" {
			newChan.Reject(ssh.UnknownChannelType, fmt.Sprintf("%q unsupported", newChan.ChannelType()))
			continue
		}
		go s.handleDirectTCPIP(newChan)
	}
	return nil
}

// handleGlobalRequests services global requests sent by the client.
// Reverse forwarding listeners created for "tcpip-forward" requests live
// until a matching "cancel-tcpip-forward" request or the end of the
// connection.
func (s *SSHServer) handleGlobalRequests(sConn *ssh.ServerConn, reqs <-chan *ssh.Request) {
	fwdListeners := make(map[string]net.Listener)
	defer func() {
		// Terminate port forwarding listener goroutines
		for _, l := range fwdListeners {
			l.Close()
		}
	}()
	for req := range reqs {
		if !req.WantReply {
			continue
		}
		switch req.Type {
		case sshMsgIgnore:
			s.mu.Lock()
			answer := s.answerPings
			s.mu.Unlock()
			if answer {
				req.Reply(false, nil)
			}
		case sshMsgTCPIPForward:
			var m struct {
				BindAddr string
				BindPort uint32
			}
			if err := ssh.Unmarshal(req.Payload, &m); err != nil {
				log.Print("Failed to parse forwarding request: ", err)
				req.Reply(false, nil)
				break
			}
			fwdListener, err := net.Listen("tcp", net.JoinHostPort(m.BindAddr, strconv.Itoa(int(m.BindPort))))
			if err != nil {
				log.Print("Failed to listen: ", err)
				req.Reply(false, nil)
				break
			}
			port := fwdListener.Addr().(*net.TCPAddr).Port
			fwdListeners[forwardKey(m.BindAddr, port)] = fwdListener

			go func() {
				for {
					local, err := fwdListener.Accept()
					if err != nil {
						break
					}
					go func() {
						defer local.Close()
						if err := handleForward(sConn, m.BindAddr, port, local); err != nil {
							log.Print("Error while handling port forwarding: ", err)
						}
					}()
				}
			}()
			req.Reply(true, makeIntPayload(uint32(port)))
		case sshMsgCancelTCPIPForward:
			var m struct {
				BindAddr string
				BindPort uint32
			}
			if err := ssh.Unmarshal(req.Payload, &m); err != nil {
				req.Reply(false, nil)
				break
			}
			key := forwardKey(m.BindAddr, int(m.BindPort))
			if l, ok := fwdListeners[key]; ok {
				l.Close()
				delete(fwdListeners, key)
				req.Reply(true, nil)
			} else {
				req.Reply(false, nil)
			}
		default:
			req.Reply(false, nil)
		}
	}
}

// handleDirectTCPIP services a "direct-tcpip" channel by connecting to the
// requested destination and relaying data in both directions.
// See RFC 4254 7.2, "TCP/IP Forwarding Channels".
func (s *SSHServer) handleDirectTCPIP(newChan ssh.NewChannel) {
	var m struct {
		DestAddr string
		DestPort uint32
		OrigAddr string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(newChan.ExtraData(), &m); err != nil {
		newChan.Reject(ssh.ConnectionFailed, "error parsing forward data: "+err.Error())
		return
	}

	dest, err := net.Dial("tcp", net.JoinHostPort(m.DestAddr, strconv.Itoa(int(m.DestPort))))
	if err != nil {
		newChan.Reject(ssh.ConnectionFailed, err.Error())
		return
	}

	ch, reqs, err := newChan.Accept()
	if err != nil {
		dest.Close()
		log.Print("Failed to accept direct-tcpip channel: ", err)
		return
	}
	go ssh.DiscardRequests(reqs)

	go func() {
		defer ch.Close()
		defer dest.Close()
		io.Copy(ch, dest)
	}()
	go func() {
		defer ch.Close()
		defer dest.Close()
		io.Copy(dest, ch)
	}()
}

// makeIntPayload returns a SSH request payload containing v.
func makeIntPayload(v uint32) []byte {
	b := bytes.Buffer{}
	if err := binary.Write(&b, binary.BigEndian, &v); err != nil {
		panic(err)
	}
	return b.Bytes()
}
