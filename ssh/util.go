// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"fmt"
	"net"
	"strconv"

	"go.chromium.org/rtunnel/errors"
)

// parseIPAddressAndPort parses an address of the form "1.2.3.4:8789" or
// "[::1]:8789", returning the IP address and port.
func parseIPAddressAndPort(addr string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "invalid host/port: %s", addr)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid IP address in host: %s", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "invalid port number: %s", portStr)
	}
	return ip, port, nil
}
