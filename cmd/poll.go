// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/simplebinary/internal/api"
	"github.com/Thermoquad/simplebinary/internal/bridge"
	"github.com/Thermoquad/simplebinary/internal/config"
	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var (
	pollMode   string
	pollRate   time.Duration
	pollPrint  bool
	pollListen string
	pollBroker string
	pollNoMQTT bool
	pollNoHTTP bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the configured devices until interrupted",
	Long: `Run the bus master: poll every configured device, track device state and
packet loss, and send queued commands.

Poll modes:
  ONCHANGE  ask each device for changed values (check-new-data)
  ONSCAN    read every readable channel on every tick
  NONE      only send commands

When the configuration has an mqtt section (or --mqtt is given) values and
device states are published and <prefix>/channel/<id>/set topics are turned
into commands. When it has an api section (or --listen is given) the state
is served over HTTP.

The connection is retried with exponential backoff until it opens.`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().StringVar(&pollMode, "mode", "", "Poll mode (ONCHANGE, ONSCAN, NONE)")
	pollCmd.Flags().DurationVar(&pollRate, "rate", 0, "Poll period (0 keeps the configured rate)")
	pollCmd.Flags().BoolVar(&pollPrint, "print", false, "Print every value and state change")
	pollCmd.Flags().StringVar(&pollListen, "listen", "", "HTTP listen address (overrides api.listen)")
	pollCmd.Flags().StringVar(&pollBroker, "mqtt", "", "MQTT broker URL (overrides mqtt.broker)")
	pollCmd.Flags().BoolVar(&pollNoMQTT, "no-mqtt", false, "Do not connect to MQTT")
	pollCmd.Flags().BoolVar(&pollNoHTTP, "no-http", false, "Do not serve HTTP")
}

// applyPollFlags overrides the poll, mqtt and api sections from flags
func applyPollFlags(cfg *config.Config) error {
	if pollMode != "" {
		mode, err := master.ParsePollMode(pollMode)
		if err != nil {
			return err
		}
		cfg.Poll.Mode = mode.String()
	}
	if pollRate > 0 {
		ms := int(pollRate.Milliseconds())
		cfg.Poll.RateMs = &ms
	}

	if pollBroker != "" {
		if cfg.MQTT == nil {
			cfg.MQTT = &config.MQTTConfig{}
		}
		cfg.MQTT.Broker = pollBroker
	}
	if pollNoMQTT {
		cfg.MQTT = nil
	}
	if pollListen != "" {
		cfg.API = &config.APIConfig{Listen: pollListen}
	}
	if pollNoHTTP {
		cfg.API = nil
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	config.Normalize(cfg)
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyPollFlags(cfg); err != nil {
		return err
	}

	engine, t, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pollPrint {
		engine.OnValue(func(ch *simplebinary.Channel, v simplebinary.Value) {
			fmt.Printf("[%s] %s = %s\n", time.Now().Format("15:04:05.000"), ch.ID, v)
		})
		engine.OnState(func(id uint8, s master.State) {
			fmt.Printf("[%s] device %d %s\n", time.Now().Format("15:04:05.000"), id, s)
		})
	}

	opts := engine.Options()
	log.Info("starting",
		"connection", t.String(),
		"mode", opts.Mode,
		"rate", opts.PollRate,
		"channels", len(cfg.Channels),
		"devices", engine.Registry().IDs())

	if err := openWithBackoff(ctx, engine, log); err != nil {
		_ = engine.Dispose()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT != nil {
		b := bridge.New(*cfg.MQTT, engine, log)
		if err := b.Start(gctx); err != nil {
			_ = engine.Dispose()
			return err
		}
		defer b.Stop()
	}

	if cfg.API != nil {
		h := api.NewRouter(engine, log, os.Stderr)
		g.Go(func() error {
			return api.Serve(gctx, cfg.API.Listen, h, log)
		})
	}

	g.Go(func() error {
		err := engine.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	stats := engine.Statistics()
	log.Info("stopped", "stats", stats.String())
	return err
}
