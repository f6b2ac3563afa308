// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

const monitorBatchInterval = 50 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for polling and controlling devices",
	Long: `Poll the configured devices and show them in an interactive terminal UI.

Features:
  - Device list with state and packet loss
  - Channel values of the selected device
  - Frame statistics (sent, received, CRC errors, timeouts, resends)
  - Command input: channel=value
  - Event log of value and state changes

Tab switches between the device list and the command input. Arrow keys
navigate the device list.

Supports serial, TCP and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireChannels(cfg); err != nil {
		return err
	}

	// log lines would tear the alt screen; events reach the UI through hooks
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, t, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := initialMonitorModel(engine, t.String(), t.IsConnected)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	events := make(chan monitorEvent, 256)
	push := func(ev monitorEvent) {
		select {
		case events <- ev:
		default:
		}
	}
	engine.OnValue(func(ch *simplebinary.Channel, v simplebinary.Value) {
		push(monitorEvent{at: time.Now(), message: fmt.Sprintf("%s = %s", ch.ID, v)})
	})
	engine.OnState(func(id uint8, s master.State) {
		push(monitorEvent{at: time.Now(), message: fmt.Sprintf("device %d %s", id, s), isError: s != master.StateConnected})
	})

	// Batch sender - forwards hook events to the TUI at a fixed rate
	go func() {
		ticker := time.NewTicker(monitorBatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var batch monitorBatchMsg
			drainLoop:
				for {
					select {
					case ev := <-events:
						batch.events = append(batch.events, ev)
					default:
						break drainLoop
					}
				}
				if len(batch.events) > 0 {
					p.Send(batch)
				}
			}
		}
	}()

	go func() {
		if err := openWithBackoff(ctx, engine, log); err != nil {
			return
		}
		p.Send(monitorEventMsg{at: time.Now(), message: "Connected: " + t.String()})
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			p.Send(monitorEventMsg{at: time.Now(), message: "Engine stopped: " + err.Error(), isError: true})
		}
	}()

	_, err = p.Run()
	cancel()
	_ = engine.Dispose()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
