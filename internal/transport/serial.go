// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the slave firmware's default line speed
const DefaultBaudRate = 9600

// SerialConfig describes a serial line
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// NewSerial creates a transport on a serial port, 8N1
func NewSerial(cfg SerialConfig, log *slog.Logger) *Stream {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	name := fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.BaudRate)
	return NewStream(name, func(context.Context) (io.ReadWriteCloser, error) {
		return openSerial(cfg)
	}, log)
}

func openSerial(cfg SerialConfig) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if cfg.ReadTimeout > 0 {
		// a read timeout returns (0, nil) and keeps the read loop alive
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
		}
	}
	return port, nil
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
