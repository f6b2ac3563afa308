// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/simplebinary/pkg/master"
)

// DefaultTopicPrefix is the MQTT topic root when none is configured
const DefaultTopicPrefix = "simplebinary"

// Normalize fills defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Connection.Port != "" && cfg.Connection.Baud == 0 {
		cfg.Connection.Baud = 9600
	}

	p := &cfg.Poll
	p.Mode = strings.ToUpper(strings.TrimSpace(p.Mode))
	if p.Mode == "" {
		p.Mode = master.ModeOnChange.String()
	}
	if p.RateMs == nil {
		rate := int(master.DefaultPollRate.Milliseconds())
		p.RateMs = &rate
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = int(master.DefaultTimeout.Milliseconds())
	}
	if p.MaxResend == 0 {
		p.MaxResend = master.DefaultMaxResend
	}
	if p.DegradeTimeMs == 0 {
		p.DegradeTimeMs = int(master.DefaultDegradeTime.Milliseconds())
	}
	if p.MaxNewDataRepeats == 0 {
		p.MaxNewDataRepeats = master.DefaultMaxNewDataRepeats
	}

	for i := range cfg.Channels {
		cfg.Channels[i].Kind = strings.ToLower(strings.TrimSpace(cfg.Channels[i].Kind))
	}

	if m := cfg.MQTT; m != nil {
		m.TopicPrefix = strings.Trim(m.TopicPrefix, "/")
		if m.TopicPrefix == "" {
			m.TopicPrefix = DefaultTopicPrefix
		}
	}
}
