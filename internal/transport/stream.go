// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport connects the master engine to a bus: a serial port, a
// raw TCP socket or a websocket bridge. Every adapter is a Stream over a
// dialed byte connection with a background read loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Thermoquad/simplebinary/pkg/master"
)

// Dialer opens the underlying byte connection
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Stream adapts a byte connection to master.Transport. Received bytes are
// pushed to the receiver from the read goroutine.
type Stream struct {
	name     string
	dial     Dialer
	log      *slog.Logger
	readSize int

	mu   sync.Mutex
	conn io.ReadWriteCloser
	recv func([]byte)

	wmu sync.Mutex
}

var _ master.Transport = (*Stream)(nil)

// NewStream creates a closed stream; Open dials
func NewStream(name string, dial Dialer, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		name:     name,
		dial:     dial,
		log:      log.With("transport", name),
		readSize: 256,
	}
}

func (s *Stream) String() string {
	return s.name
}

// Open dials the connection and starts the read loop
func (s *Stream) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.conn = conn
	s.log.Info("connected")

	go s.readLoop(conn)
	return nil
}

// Close closes the connection; the read loop exits on its own
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.log.Info("closed")
	return conn.Close()
}

// IsConnected reports whether the connection is open
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SetReceiver registers the function receiving inbound bytes
func (s *Stream) SetReceiver(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = fn
}

// Write sends p completely. A failed write drops the connection so the next
// exchange reopens it.
func (s *Stream) Write(p []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return master.ErrNotConnected
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			s.drop(conn, err)
			return fmt.Errorf("%s: write: %w", s.name, err)
		}
		p = p[n:]
	}
	return nil
}

func (s *Stream) readLoop(conn io.ReadWriteCloser) {
	buf := make([]byte, s.readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			recv := s.recv
			s.mu.Unlock()
			if recv != nil {
				recv(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			s.drop(conn, err)
			return
		}
	}
}

// drop forgets conn if it is still the current connection
func (s *Stream) drop(conn io.ReadWriteCloser, cause error) {
	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.mu.Unlock()

	if !current {
		return
	}
	if errors.Is(cause, io.EOF) {
		s.log.Warn("connection closed by peer")
	} else {
		s.log.Error("connection lost", "error", cause)
	}
	_ = conn.Close()
}
