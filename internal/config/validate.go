// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// CONNECTION: at most one line (flags may supply it instead)
	// ------------------------------------------------------------

	c := cfg.Connection
	set := 0
	for _, s := range []string{c.Port, c.TCP, c.URL} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("connection: only one of port, tcp and url may be set")
	}
	if c.Baud < 0 {
		return fmt.Errorf("connection: baud must not be negative")
	}
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("connection: url %q must use ws:// or wss://", c.URL)
		}
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	p := cfg.Poll
	mode, err := master.ParsePollMode(p.Mode)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if p.RateMs != nil && *p.RateMs < 0 {
		return fmt.Errorf("poll: rate_ms must not be negative")
	}
	if p.RateMs != nil && *p.RateMs == 0 && mode == master.ModeNone {
		return fmt.Errorf("poll: rate_ms 0 requires mode ONCHANGE or ONSCAN")
	}
	for name, v := range map[string]int{
		"timeout_ms":           p.TimeoutMs,
		"max_resend":           p.MaxResend,
		"degrade_max_failures": p.DegradeMaxFailures,
		"degrade_time_ms":      p.DegradeTimeMs,
		"max_new_data_repeats": p.MaxNewDataRepeats,
	} {
		if v < 0 {
			return fmt.Errorf("poll: %s must not be negative", name)
		}
	}

	// ------------------------------------------------------------
	// CHANNELS: ids and state addresses unique, addresses parse
	// ------------------------------------------------------------

	ids := make(map[string]bool, len(cfg.Channels))
	stateOwner := make(map[string]string)
	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if ids[ch.ID] {
			return fmt.Errorf("channel %q: duplicate id", ch.ID)
		}
		ids[ch.ID] = true

		kind, err := simplebinary.ParseChannelKind(ch.Kind)
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.ID, err)
		}
		if ch.State == "" && ch.Command == "" {
			return fmt.Errorf("channel %q: state or command address required", ch.ID)
		}
		if ch.State != "" {
			addr, err := simplebinary.ParseAddress(kind, ch.State)
			if err != nil {
				return fmt.Errorf("channel %q: state: %w", ch.ID, err)
			}
			key := fmt.Sprintf("%d:%d", addr.DeviceID, addr.Register)
			if prev, exists := stateOwner[key]; exists {
				return fmt.Errorf("state address %s used by channels %q and %q", key, prev, ch.ID)
			}
			stateOwner[key] = ch.ID
		}
		if ch.Command != "" {
			if _, err := simplebinary.ParseAddress(kind, ch.Command); err != nil {
				return fmt.Errorf("channel %q: command: %w", ch.ID, err)
			}
		}
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if m := cfg.MQTT; m != nil {
		if m.Broker == "" {
			return fmt.Errorf("mqtt: broker is required")
		}
		u, err := url.Parse(m.Broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("mqtt: broker %q must be a URL like tcp://host:1883", m.Broker)
		}
		if m.QoS > 2 {
			return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
		}
	}

	if a := cfg.API; a != nil && a.Listen == "" {
		return fmt.Errorf("api: listen address is required")
	}

	return nil
}
