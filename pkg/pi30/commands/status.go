// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import "github.com/Thermoquad/mpqtt/pkg/pi30"

// ChargeStatus is derived from the charging bits of the device status.
type ChargeStatus int

const (
	NotCharging ChargeStatus = iota
	ChargingFromSCC
	ChargingFromAC
	ChargingFromSCCAndAC
)

func (c ChargeStatus) String() string {
	switch c {
	case NotCharging:
		return "not_charging"
	case ChargingFromSCC:
		return "charging_from_scc"
	case ChargingFromAC:
		return "charging_from_ac"
	case ChargingFromSCCAndAC:
		return "charging_from_scc_and_ac"
	}
	return "unknown"
}

func (c ChargeStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DeviceStatus is the 8-bit status field of QPIGS, b7 first on the wire.
type DeviceStatus struct {
	SBUPriorityVersion   bool         `json:"sbu_priority_version"`
	ConfigurationChanged bool         `json:"configuration_changed"`
	SCCFirmwareUpdated   bool         `json:"scc_firmware_updated"`
	ActiveLoad           bool         `json:"active_load"`
	BatterySteady        bool         `json:"battery_voltage_steady"`
	ChargeStatus         ChargeStatus `json:"charge_status"`
}

// GeneralStatusResponse is the QPIGS reading.
type GeneralStatusResponse struct {
	GridVoltage             float64      `json:"grid_voltage"`
	GridFrequency           float64      `json:"grid_frequency"`
	ACOutVoltage            float64      `json:"ac_out_voltage"`
	ACOutFrequency          float64      `json:"ac_out_frequency"`
	ACOutApparentPower      int          `json:"ac_out_apparent_power"`
	ACOutActivePower        int          `json:"ac_out_active_power"`
	OutLoadPercent          int          `json:"out_load_percent"`
	BusVoltage              int          `json:"bus_voltage"`
	BatteryVoltage          float64      `json:"battery_voltage"`
	BatteryChargeCurrent    int          `json:"battery_charge_current"`
	BatteryCapacity         int          `json:"battery_capacity"`
	InverterHeatSinkTemp    int          `json:"inverter_heat_sink_temp"`
	PVInputCurrent          float64      `json:"pv_input_current"`
	PVInputVoltage          float64      `json:"pv_input_voltage"`
	BatterySCCVoltage       float64      `json:"battery_scc_voltage"`
	BatteryDischargeCurrent int          `json:"battery_discharge_current"`
	DeviceStatus            DeviceStatus `json:"device_status"`

	// Present on newer firmwares only
	BatteryVoltageOffsetForFans *int `json:"battery_voltage_offset_for_fans,omitempty"`
	EEPROMVersion               *int `json:"eeprom_version,omitempty"`
	PVChargingPower             *int `json:"pv_charging_power,omitempty"`
}

// GeneralStatus queries the general status parameters (QPIGS).
type GeneralStatus struct{}

func (GeneralStatus) Name() string    { return "QPIGS" }
func (GeneralStatus) Request() []byte { return []byte("QPIGS") }

func (GeneralStatus) ParseResponse(payload []byte) (GeneralStatusResponse, error) {
	var res GeneralStatusResponse

	r, err := newFieldReader("QPIGS", payload, 17)
	if err != nil {
		return res, err
	}

	res.GridVoltage = r.float(0, "grid_voltage")
	res.GridFrequency = r.float(1, "grid_frequency")
	res.ACOutVoltage = r.float(2, "ac_out_voltage")
	res.ACOutFrequency = r.float(3, "ac_out_frequency")
	res.ACOutApparentPower = r.int(4, "ac_out_apparent_power")
	res.ACOutActivePower = r.int(5, "ac_out_active_power")
	res.OutLoadPercent = r.int(6, "out_load_percent")
	res.BusVoltage = r.int(7, "bus_voltage")
	res.BatteryVoltage = r.float(8, "battery_voltage")
	res.BatteryChargeCurrent = r.int(9, "battery_charge_current")
	res.BatteryCapacity = r.int(10, "battery_capacity")
	res.InverterHeatSinkTemp = r.int(11, "inverter_heat_sink_temp")
	res.PVInputCurrent = r.float(12, "pv_input_current")
	res.PVInputVoltage = r.float(13, "pv_input_voltage")
	res.BatterySCCVoltage = r.float(14, "battery_scc_voltage")
	res.BatteryDischargeCurrent = r.int(15, "battery_discharge_current")
	bits := r.bits(16, 8, "device_status")
	res.BatteryVoltageOffsetForFans = r.optInt(17, "battery_voltage_offset_for_fans")
	res.EEPROMVersion = r.optInt(18, "eeprom_version")
	res.PVChargingPower = r.optInt(19, "pv_charging_power")
	if r.err != nil {
		return GeneralStatusResponse{}, r.err
	}

	status, err := parseDeviceStatus(bits)
	if err != nil {
		return GeneralStatusResponse{}, err
	}
	res.DeviceStatus = status
	return res, nil
}

func parseDeviceStatus(b []bool) (DeviceStatus, error) {
	s := DeviceStatus{
		SBUPriorityVersion:   b[0],
		ConfigurationChanged: b[1],
		SCCFirmwareUpdated:   b[2],
		ActiveLoad:           b[3],
		BatterySteady:        b[4],
	}

	charging, scc, ac := b[5], b[6], b[7]
	switch {
	case !charging:
		s.ChargeStatus = NotCharging
	case scc && ac:
		s.ChargeStatus = ChargingFromSCCAndAC
	case scc:
		s.ChargeStatus = ChargingFromSCC
	case ac:
		s.ChargeStatus = ChargingFromAC
	default:
		return s, pi30.NewPayloadError("QPIGS", "charging flag set without a charge source")
	}
	return s, nil
}
