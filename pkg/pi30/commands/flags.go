// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"bytes"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

var flagNames = map[byte]string{
	'a': "buzzer",
	'b': "overload_bypass",
	'j': "power_saving",
	'k': "lcd_escape_to_default",
	'u': "overload_restart",
	'v': "over_temperature_restart",
	'x': "backlight",
	'y': "alarm_on_primary_source_interrupt",
	'z': "fault_code_record",
}

// FlagsResponse is the QFLAG reading.
type FlagsResponse struct {
	Enabled  []string `json:"enabled"`
	Disabled []string `json:"disabled"`
}

// Flags queries the enabled and disabled device options (QFLAG).
type Flags struct{}

func (Flags) Name() string    { return "QFLAG" }
func (Flags) Request() []byte { return []byte("QFLAG") }

// ParseResponse parses "E<letters>D<letters>".
func (Flags) ParseResponse(payload []byte) (FlagsResponse, error) {
	rest, err := trimPrefix("QFLAG", payload, "E")
	if err != nil {
		return FlagsResponse{}, err
	}
	idx := bytes.IndexByte(rest, 'D')
	if idx < 0 {
		return FlagsResponse{}, pi30.NewPayloadError("QFLAG", "missing disabled section in %q", payload)
	}

	enabled, err := flagList(rest[:idx])
	if err != nil {
		return FlagsResponse{}, err
	}
	disabled, err := flagList(rest[idx+1:])
	if err != nil {
		return FlagsResponse{}, err
	}
	return FlagsResponse{Enabled: enabled, Disabled: disabled}, nil
}

func flagList(letters []byte) ([]string, error) {
	out := make([]string, 0, len(letters))
	for _, c := range letters {
		name, ok := flagNames[c]
		if !ok {
			return nil, pi30.NewPayloadError("QFLAG", "unknown flag %q", c)
		}
		out = append(out, name)
	}
	return out, nil
}
