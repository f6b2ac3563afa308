// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/simplebinary/pkg/master"
)

// ============================================================
// Test Helpers
// ============================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector gathers received bytes for assertions from the test goroutine
type collector struct {
	mu   sync.Mutex
	data []byte
}

func (c *collector) receive(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
}

func (c *collector) waitFor(t *testing.T, want []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := append([]byte(nil), c.data...)
		c.mu.Unlock()
		if bytes.Equal(got, want) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("did not receive % X", want)
}

func waitDisconnected(t *testing.T, s *Stream) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.IsConnected() {
		t.Fatal("stream still connected")
	}
}

// ============================================================
// Stream Tests
// ============================================================

func TestStream_PipeRoundTrip(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream("pipe", func(context.Context) (io.ReadWriteCloser, error) {
		return local, nil
	}, quietLogger())

	var got collector
	s.SetReceiver(got.receive)

	if err := s.Write([]byte{1}); !errors.Is(err, master.ErrNotConnected) {
		t.Fatalf("write before open: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsConnected() {
		t.Fatal("not connected after Open")
	}

	go func() {
		buf := make([]byte, 4)
		n, _ := io.ReadFull(remote, buf)
		_, _ = remote.Write(buf[:n])
	}()
	if err := s.Write([]byte{0x01, 0xE0, 0x00, 0x28}); err != nil {
		t.Fatal(err)
	}
	got.waitFor(t, []byte{0x01, 0xE0, 0x00, 0x28})

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.IsConnected() {
		t.Error("connected after Close")
	}
}

func TestStream_PeerCloseDrops(t *testing.T) {
	local, remote := net.Pipe()
	dials := 0
	s := NewStream("pipe", func(context.Context) (io.ReadWriteCloser, error) {
		dials++
		return local, nil
	}, quietLogger())

	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(context.Background()); err != nil || dials != 1 {
		t.Fatalf("second Open redialed: dials=%d err=%v", dials, err)
	}

	remote.Close()
	waitDisconnected(t, s)
}

func TestStream_DialError(t *testing.T) {
	s := NewStream("broken", func(context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}, quietLogger())

	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if s.IsConnected() {
		t.Error("connected after failed dial")
	}
}

// ============================================================
// TCP Tests
// ============================================================

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gateway.local", "gateway.local:43243"},
		{"10.0.0.5:1000", "10.0.0.5:1000"},
		{"::1", "[::1]:43243"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := withDefaultPort(tt.in); got != tt.want {
				t.Errorf("withDefaultPort(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTCP_EchoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	s := NewTCP(ln.Addr().String(), quietLogger())
	var got collector
	s.SetReceiver(got.receive)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame := []byte{0x01, 0xD0, 0x01, 0xD6}
	if err := s.Write(frame); err != nil {
		t.Fatal(err)
	}
	got.waitFor(t, frame)
}

// ============================================================
// WebSocket Tests
// ============================================================

func TestWebSocket_BinaryBridge(t *testing.T) {
	auth := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// bridges also send status text; it must be skipped
			_ = conn.WriteMessage(websocket.TextMessage, []byte("status"))
			_ = conn.WriteMessage(mt, data)
		}
	}))
	defer srv.Close()

	s := NewWebSocket(WebSocketConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Username: "admin",
		Password: "secret",
	}, quietLogger())
	var got collector
	s.SetReceiver(got.receive)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if header := <-auth; header != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("Authorization = %q", header)
	}

	frame := []byte{0x02, 0xE0, 0x00, 0x95}
	if err := s.Write(frame); err != nil {
		t.Fatal(err)
	}
	got.waitFor(t, frame)
}

func TestWebSocket_RejectsScheme(t *testing.T) {
	_, err := dialWebSocket(context.Background(), WebSocketConfig{URL: "http://example.com"})
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("expected scheme error, got %v", err)
	}
}
