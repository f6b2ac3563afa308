// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/simplebinary/internal/config"
	"github.com/Thermoquad/simplebinary/internal/transport"
	"github.com/Thermoquad/simplebinary/pkg/master"
)

// newLogger writes structured logs to stderr, at debug level with --verbose
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config when given and applies the connection flags
// on top of it
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := rootCmd.PersistentFlags()
	c := &cfg.Connection
	switch {
	case flags.Changed("port"):
		*c = config.ConnectionConfig{Port: portName, Baud: baudRate}
	case flags.Changed("tcp"):
		*c = config.ConnectionConfig{TCP: tcpAddress}
	case flags.Changed("url"):
		*c = config.ConnectionConfig{URL: wsURL, Username: wsUsername, NoSSLVerify: wsNoSSLVerify}
	}
	if flags.Changed("baud") && c.Port != "" {
		c.Baud = baudRate
	}
	if flags.Changed("username") && c.URL != "" {
		c.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") && c.URL != "" {
		c.NoSSLVerify = wsNoSSLVerify
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("SIMPLEBINARY_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newTransport builds the transport a connection section selects. It is
// not opened.
func newTransport(c config.ConnectionConfig, log *slog.Logger) (*transport.Stream, error) {
	switch {
	case c.URL != "":
		password := ""
		if c.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return transport.NewWebSocket(transport.WebSocketConfig{
			URL:           c.URL,
			Username:      c.Username,
			Password:      password,
			SkipSSLVerify: c.NoSSLVerify,
		}, log), nil

	case c.TCP != "":
		return transport.NewTCP(c.TCP, log), nil

	case c.Port != "":
		return transport.NewSerial(transport.SerialConfig{Port: c.Port, BaudRate: c.Baud}, log), nil
	}

	return nil, fmt.Errorf("one of --port, --tcp or --url must be specified")
}

// newEngine wires a transport, the configured channels and the poll policy
func newEngine(cfg *config.Config, log *slog.Logger) (*master.Engine, *transport.Stream, error) {
	t, err := newTransport(cfg.Connection, log)
	if err != nil {
		return nil, nil, err
	}
	channels, err := cfg.ChannelSet()
	if err != nil {
		return nil, nil, err
	}
	opts := cfg.EngineOptions()
	opts.Logger = log
	return master.New(t, channels, opts), t, nil
}

// requireChannels fails when a command needs channel bindings but the
// configuration has none
func requireChannels(cfg *config.Config) error {
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("no channels configured (use --config)")
	}
	return nil
}

// openWithBackoff opens the engine, retrying with exponential backoff
// until ctx is done
func openWithBackoff(ctx context.Context, e *master.Engine, log *slog.Logger) error {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		err := e.Open(ctx)
		if err == nil {
			return nil
		}
		log.Warn("connection failed, retrying", "error", err, "in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// parseDeviceID parses a device id argument (0-255)
func parseDeviceID(s string) (uint8, error) {
	id, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid device id %q (0-255)", s)
	}
	return uint8(id), nil
}
