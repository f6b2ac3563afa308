// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var (
	probeTimeout time.Duration
	probeForce   bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <device>",
	Short: "Test a device by sending one check-new-data request",
	Long: `Send a check-new-data request to one device and wait for its answer.

With --force the device is asked to send all of its values.

Exit codes:
  0 - Device answered
  1 - No answer, or the device rejected the request
  2 - Connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", time.Second, "Answer timeout")
	probeCmd.Flags().BoolVar(&probeForce, "force", false, "Ask for all values")
}

func runProbe(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Poll.Mode = master.ModeNone.String()
	cfg.Poll.TimeoutMs = int(probeTimeout.Milliseconds())

	engine, t, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := engine.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer engine.Dispose()

	fmt.Printf("sbmaster - Probe\n")
	fmt.Printf("Connection: %s\n", t)
	fmt.Printf("Device: %d, timeout %s\n\n", id, probeTimeout)

	start := time.Now()
	msg, err := engine.Probe(ctx, id, probeForce)
	elapsed := time.Since(start)

	var rejected *master.RejectedError
	switch {
	case err == nil:
		fmt.Printf("SUCCESS: %s in %s\n", simplebinary.FormatMessageID(msg.ID), elapsed.Round(time.Millisecond))
		fmt.Print("  ", simplebinary.FormatMessage(msg))
		return nil
	case errors.As(err, &rejected):
		fmt.Fprintf(os.Stderr, "REJECTED: %v\n", err)
		os.Exit(1)
	case errors.Is(err, master.ErrNotConnected):
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		os.Exit(1)
	}
	return nil
}
