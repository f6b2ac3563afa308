// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// DefaultTCPPort is the port SimpleBinary TCP gateways listen on
const DefaultTCPPort = 43243

// NewTCP creates a transport on a raw TCP connection to address. A missing
// port defaults to DefaultTCPPort.
func NewTCP(address string, log *slog.Logger) *Stream {
	address = withDefaultPort(address)
	return NewStream("TCP: "+address, func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("TCP connection to %s failed: %w", address, err)
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			// frames are tiny; do not let Nagle hold them back
			_ = tc.SetNoDelay(true)
		}
		return conn, nil
	}, log)
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultTCPPort))
}
