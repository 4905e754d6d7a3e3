// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"strings"
	"unicode/utf8"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// Warning is a bit position in the QPIWS response, a0 first.
type Warning int

// Warning bits (reserved positions are omitted)
const (
	WarnInverterFault         Warning = 1
	WarnBusOver               Warning = 2
	WarnBusUnder              Warning = 3
	WarnBusSoftFail           Warning = 4
	WarnLineFail              Warning = 5
	WarnOPVShort              Warning = 6
	WarnInverterVoltageLow    Warning = 7
	WarnInverterVoltageHigh   Warning = 8
	WarnOverTemperature       Warning = 9
	WarnFanLocked             Warning = 10
	WarnBatteryVoltageHigh    Warning = 11
	WarnBatteryLowAlarm       Warning = 12
	WarnBatteryUnderShutdown  Warning = 14
	WarnOverload              Warning = 16
	WarnEEPROMFault           Warning = 17
	WarnInverterOverCurrent   Warning = 18
	WarnInverterSoftFail      Warning = 19
	WarnSelfTestFail          Warning = 20
	WarnOPDCVoltageOver       Warning = 21
	WarnBatteryOpen           Warning = 22
	WarnCurrentSensorFail     Warning = 23
	WarnBatteryShort          Warning = 24
	WarnPowerLimit            Warning = 25
	WarnPVVoltageHigh         Warning = 26
	WarnMPPTOverloadFault     Warning = 27
	WarnMPPTOverloadWarning   Warning = 28
	WarnBatteryTooLowToCharge Warning = 29
)

// WarningBits is the minimum length of a QPIWS response.
const WarningBits = 32

var warningNames = map[Warning]string{
	WarnInverterFault:         "inverter_fault",
	WarnBusOver:               "bus_over",
	WarnBusUnder:              "bus_under",
	WarnBusSoftFail:           "bus_soft_fail",
	WarnLineFail:              "line_fail",
	WarnOPVShort:              "opv_short",
	WarnInverterVoltageLow:    "inverter_voltage_too_low",
	WarnInverterVoltageHigh:   "inverter_voltage_too_high",
	WarnOverTemperature:       "over_temperature",
	WarnFanLocked:             "fan_locked",
	WarnBatteryVoltageHigh:    "battery_voltage_high",
	WarnBatteryLowAlarm:       "battery_low_alarm",
	WarnBatteryUnderShutdown:  "battery_under_shutdown",
	WarnOverload:              "overload",
	WarnEEPROMFault:           "eeprom_fault",
	WarnInverterOverCurrent:   "inverter_over_current",
	WarnInverterSoftFail:      "inverter_soft_fail",
	WarnSelfTestFail:          "self_test_fail",
	WarnOPDCVoltageOver:       "op_dc_voltage_over",
	WarnBatteryOpen:           "battery_open",
	WarnCurrentSensorFail:     "current_sensor_fail",
	WarnBatteryShort:          "battery_short",
	WarnPowerLimit:            "power_limit",
	WarnPVVoltageHigh:         "pv_voltage_high",
	WarnMPPTOverloadFault:     "mppt_overload_fault",
	WarnMPPTOverloadWarning:   "mppt_overload_warning",
	WarnBatteryTooLowToCharge: "battery_too_low_to_charge",
}

func (w Warning) String() string {
	if name, ok := warningNames[w]; ok {
		return name
	}
	return "reserved"
}

// WarningStatusResponse is the QPIWS reading.
type WarningStatusResponse struct {
	Raw    string   `json:"raw"`
	Active []string `json:"active"`
	bits   []bool
}

// Has reports whether warning w is set.
func (w WarningStatusResponse) Has(warn Warning) bool {
	return int(warn) < len(w.bits) && w.bits[warn]
}

// Fault reports whether the inverter is in a fault condition rather than
// raising a warning.
func (w WarningStatusResponse) Fault() bool {
	return w.Has(WarnInverterFault)
}

// WarningStatus queries the device warning status (QPIWS).
type WarningStatus struct{}

func (WarningStatus) Name() string    { return "QPIWS" }
func (WarningStatus) Request() []byte { return []byte("QPIWS") }

func (WarningStatus) ParseResponse(payload []byte) (WarningStatusResponse, error) {
	if !utf8.Valid(payload) {
		return WarningStatusResponse{}, pi30.NewEncodingError("QPIWS", "payload", errInvalidUTF8)
	}
	raw := strings.TrimSpace(string(payload))
	if len(raw) < WarningBits {
		return WarningStatusResponse{}, pi30.NewPayloadError("QPIWS", "expected at least %d bits, got %d", WarningBits, len(raw))
	}
	bits, err := parseBits("QPIWS", raw, "warnings")
	if err != nil {
		return WarningStatusResponse{}, err
	}

	res := WarningStatusResponse{Raw: raw, Active: []string{}, bits: bits}
	for i, set := range bits {
		if !set {
			continue
		}
		if name, ok := warningNames[Warning(i)]; ok {
			res.Active = append(res.Active, name)
		}
	}
	return res, nil
}
