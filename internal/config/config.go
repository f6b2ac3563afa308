// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML description of a SimpleBinary connection:
// the line to open, the poll policy, the channel bindings and the optional
// MQTT and HTTP surfaces.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Poll       PollConfig       `yaml:"poll"`
	Channels   []ChannelConfig  `yaml:"channels"`
	MQTT       *MQTTConfig      `yaml:"mqtt"`
	API        *APIConfig       `yaml:"api"`
}

// ---- CONNECTION ----

// ConnectionConfig selects exactly one of a serial port, a TCP gateway or
// a websocket bridge. Command-line flags override these.
type ConnectionConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	TCP string `yaml:"tcp"`

	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// ---- POLL ----

type PollConfig struct {
	Mode string `yaml:"mode"`
	// RateMs 0 polls in a tight loop; unset means the default
	RateMs             *int `yaml:"rate_ms"`
	TimeoutMs          int  `yaml:"timeout_ms"`
	MaxResend          int  `yaml:"max_resend"`
	DegradeMaxFailures int  `yaml:"degrade_max_failures"`
	DegradeTimeMs      int  `yaml:"degrade_time_ms"`
	DiscardCommands    bool `yaml:"discard_commands"`
	MaxNewDataRepeats  int  `yaml:"max_new_data_repeats"`
}

// ---- CHANNELS ----

type ChannelConfig struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"`
	State   string `yaml:"state"`
	Command string `yaml:"command"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// ---- API ----

type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads, parses, validates and normalizes a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, then validates and normalizes
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// ChannelSet builds the channel bindings. It must be called on a
// validated configuration.
func (c *Config) ChannelSet() (*simplebinary.ChannelSet, error) {
	channels := make([]*simplebinary.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		kind, err := simplebinary.ParseChannelKind(ch.Kind)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.ID, err)
		}
		built, err := simplebinary.NewChannel(ch.ID, kind, ch.State, ch.Command)
		if err != nil {
			return nil, err
		}
		channels = append(channels, built)
	}
	return simplebinary.NewChannelSet(channels...)
}

// EngineOptions converts the poll section. Logger and clock are left to
// the caller.
func (c *Config) EngineOptions() master.Options {
	opts := master.DefaultOptions()
	p := c.Poll

	if mode, err := master.ParsePollMode(p.Mode); err == nil {
		opts.Mode = mode
	}
	if p.RateMs != nil {
		opts.PollRate = time.Duration(*p.RateMs) * time.Millisecond
	}
	if p.TimeoutMs > 0 {
		opts.Timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	if p.MaxResend > 0 {
		opts.MaxResend = p.MaxResend
	}
	opts.DegradeMaxFailures = p.DegradeMaxFailures
	if p.DegradeTimeMs > 0 {
		opts.DegradeTime = time.Duration(p.DegradeTimeMs) * time.Millisecond
	}
	opts.DiscardCommands = p.DiscardCommands
	if p.MaxNewDataRepeats > 0 {
		opts.MaxNewDataRepeats = p.MaxNewDataRepeats
	}
	return opts
}
