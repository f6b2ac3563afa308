// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <channel> <value>",
	Short: "Write one value to a channel",
	Long: `Queue a command for a configured channel and send it immediately.

Values use the channel's text form:
  switch         ON / OFF
  contact        OPEN / CLOSED
  dimmer         0-100, ON / OFF
  rollershutter  0-100, UP / DOWN / STOP / MOVE
  color          h,s,b (hsb) or r,g,b[,w] (rgb, rgbw)
  number         integer or decimal
  string         any text`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var readCmd = &cobra.Command{
	Use:   "read <channel>...",
	Short: "Read channel values once",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRead,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(readCmd)
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", time.Second, "Answer timeout")
	readCmd.Flags().DurationVar(&sendTimeout, "timeout", time.Second, "Answer timeout")
}

// openOneShot opens an engine that only exchanges on request
func openOneShot(ctx context.Context) (*master.Engine, error) {
	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireChannels(cfg); err != nil {
		return nil, err
	}
	cfg.Poll.Mode = master.ModeNone.String()
	cfg.Poll.TimeoutMs = int(sendTimeout.Milliseconds())

	engine, _, err := newEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := engine.Open(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := openOneShot(ctx)
	if err != nil {
		return err
	}
	defer engine.Dispose()

	id := args[0]
	ch := engine.Channels().Get(id)
	if ch == nil {
		return &master.UnknownChannelIDError{ID: id}
	}
	v, err := simplebinary.ParseValue(ch, args[1])
	if err != nil {
		return err
	}

	if err := engine.Command(ctx, id, v); err != nil {
		return err
	}
	if err := engine.Flush(ctx); err != nil {
		return err
	}

	dev := engine.Registry().Get(ch.CommandAddress.DeviceID)
	if n := dev.QueueLen(); n > 0 {
		return fmt.Errorf("device %d: %d command(s) not acknowledged", dev.ID, n)
	}
	fmt.Printf("%s = %s (device %d %s)\n", id, v, dev.ID, dev.State())
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := openOneShot(ctx)
	if err != nil {
		return err
	}
	defer engine.Dispose()

	failed := 0
	for _, id := range args {
		v, err := engine.Read(ctx, id)
		if err != nil {
			fmt.Printf("%s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("%s = %s\n", id, v)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reads failed", failed, len(args))
	}
	return nil
}
