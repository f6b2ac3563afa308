// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// sbmaster - SimpleBinary bus master
//
// Polls SimpleBinary slave devices over serial, TCP or WebSocket links and
// exposes their channels on the command line, over MQTT and over HTTP.

package main

import (
	"os"

	"github.com/Thermoquad/simplebinary/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
