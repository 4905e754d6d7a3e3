// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// mpqtt - PI30 solar inverter to MQTT bridge
//
// Polls an inverter speaking the PI30 serial protocol over a raw HID device,
// a serial port or a WebSocket bridge, and publishes its readings to MQTT.

package main

import (
	"os"

	"github.com/Thermoquad/mpqtt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
