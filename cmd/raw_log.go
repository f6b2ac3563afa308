// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var (
	rawStatsInterval int
	rawErrorsOnly    bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display bus traffic in human-readable format",
	Long: `Passively decode and display SimpleBinary frames as they arrive.

Nothing is sent. Each frame is shown with timestamp, device id, message id
and decoded payload; data frames for configured channels (--config) also
show the channel value. CRC mismatches, unknown message ids and buffer
errors are highlighted.

With --stats-interval a statistics summary is printed periodically.

Supports serial, TCP and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawStatsInterval, "stats-interval", 0, "Statistics summary interval in seconds (0 disables)")
	rawLogCmd.Flags().BoolVar(&rawErrorsOnly, "errors-only", false, "Only display errors")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	channels, err := cfg.ChannelSet()
	if err != nil {
		return err
	}
	t, err := newTransport(cfg.Connection, log)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	decoder := simplebinary.NewStreamDecoder(simplebinary.DefaultBufferSize, channels)

	t.SetReceiver(func(p []byte) {
		mu.Lock()
		defer mu.Unlock()
		err := decoder.Feed(p, func(msg *simplebinary.Message, err error) bool {
			if err != nil {
				if !errors.Is(err, simplebinary.ErrUnderflow) {
					printFrameError(err)
				}
				return true
			}
			if !rawErrorsOnly {
				fmt.Print(simplebinary.FormatMessage(msg))
			}
			return true
		})
		if err != nil {
			printFrameError(err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := t.Open(ctx); err != nil {
		return err
	}
	defer t.Close()

	fmt.Printf("sbmaster - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", t)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var statsTick <-chan time.Time
	if rawStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(rawStatsInterval) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}
	linkCheck := time.NewTicker(250 * time.Millisecond)
	defer linkCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			printStats(decoder.Statistics())
			mu.Unlock()
			return nil
		case <-statsTick:
			mu.Lock()
			printStats(decoder.Statistics())
			mu.Unlock()
		case <-linkCheck.C:
			if !t.IsConnected() {
				log.Info("connection closed")
				return nil
			}
		}
	}
}

// printFrameError prints a decode error in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", timestamp, err)
}

func printStats(s *simplebinary.Statistics) {
	s.CalculateRates()
	fmt.Printf("\n--- Statistics ---\n%s\n", s)
}
