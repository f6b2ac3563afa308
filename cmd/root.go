// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// TCP gateway flag
	tcpAddress string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sbmaster",
	Short: "SimpleBinary bus master",
	Long: `sbmaster - A master for SimpleBinary slave devices.

Polls devices on a serial line, a TCP gateway or a websocket bridge, keeps
track of device state and packet loss, and queues commands for writable
channels. Values can be mirrored to MQTT and served over HTTP.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  TCP:       --tcp host[:port]
  WebSocket: --url ws://host/path [--username user]

Channels and the poll policy are read from a YAML file given with --config.
Connection flags override the file.

For WebSocket authentication, the password is read from the
SIMPLEBINARY_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVar(&tcpAddress, "tcp", "", "TCP gateway address (host[:port])")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
