// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"fmt"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// Mode is the device operating mode reported by QMOD.
type Mode byte

// Mode values, as sent by the device
const (
	ModePowerOn     Mode = 'P'
	ModeStandby     Mode = 'S'
	ModeLine        Mode = 'L'
	ModeBattery     Mode = 'B'
	ModeFault       Mode = 'F'
	ModePowerSaving Mode = 'H'
	ModeShutdown    Mode = 'D'
)

var modeNames = map[Mode]string{
	ModePowerOn:     "power_on",
	ModeStandby:     "standby",
	ModeLine:        "line",
	ModeBattery:     "battery",
	ModeFault:       "fault",
	ModePowerSaving: "power_saving",
	ModeShutdown:    "shutdown",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%c)", byte(m))
}

// MarshalText encodes the mode by name in JSON and CBOR output.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DeviceMode queries the operating mode (QMOD).
type DeviceMode struct{}

func (DeviceMode) Name() string    { return "QMOD" }
func (DeviceMode) Request() []byte { return []byte("QMOD") }

func (DeviceMode) ParseResponse(payload []byte) (Mode, error) {
	if len(payload) != 1 {
		return 0, pi30.NewPayloadError("QMOD", "expected a single mode byte, got %q", payload)
	}
	m := Mode(payload[0])
	if _, ok := modeNames[m]; !ok {
		return 0, pi30.NewPayloadError("QMOD", "unknown mode %q", payload)
	}
	return m, nil
}
