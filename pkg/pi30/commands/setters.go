// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"fmt"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// SetOutputSourcePriority changes the output source priority (POPnn).
// The device answers ACK, or NAK for an unsupported value.
type SetOutputSourcePriority struct {
	Priority OutputSourcePriority
}

func (SetOutputSourcePriority) Name() string { return "POP" }

func (s SetOutputSourcePriority) Request() []byte {
	return []byte(fmt.Sprintf("POP%02d", int(s.Priority)))
}

func (SetOutputSourcePriority) ParseResponse(payload []byte) (bool, error) {
	return pi30.ParseAck("POP", payload)
}

// SetChargerSourcePriority changes the charger source priority (PCPnn).
type SetChargerSourcePriority struct {
	Priority ChargerSourcePriority
}

func (SetChargerSourcePriority) Name() string { return "PCP" }

func (s SetChargerSourcePriority) Request() []byte {
	return []byte(fmt.Sprintf("PCP%02d", int(s.Priority)))
}

func (SetChargerSourcePriority) ParseResponse(payload []byte) (bool, error) {
	return pi30.ParseAck("PCP", payload)
}
