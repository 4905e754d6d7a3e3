// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"strconv"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// ParallelInverterStatus is the 8-bit inverter status field of QPGSn,
// b7 first on the wire. Bits 4 and 3 are the battery direction and are not
// decoded.
type ParallelInverterStatus struct {
	SCCOk                bool `json:"scc_ok"`
	ACCharging           bool `json:"ac_charging"`
	SCCCharging          bool `json:"scc_charging"`
	LineLoss             bool `json:"line_loss"`
	LoadOn               bool `json:"load_on"`
	ConfigurationChanged bool `json:"configuration_changed"`
}

// ParallelStatusResponse is the QPGSn reading for one unit of a parallel
// system.
type ParallelStatusResponse struct {
	Exists                  bool                   `json:"exists"`
	SerialNumber            string                 `json:"serial_number"`
	WorkMode                Mode                   `json:"work_mode"`
	FaultCode               int                    `json:"fault_code"`
	GridVoltage             float64                `json:"grid_voltage"`
	GridFrequency           float64                `json:"grid_frequency"`
	ACOutVoltage            float64                `json:"ac_out_voltage"`
	ACOutFrequency          float64                `json:"ac_out_frequency"`
	ACOutApparentPower      int                    `json:"ac_out_apparent_power"`
	ACOutActivePower        int                    `json:"ac_out_active_power"`
	LoadPercent             int                    `json:"load_percent"`
	BatteryVoltage          float64                `json:"battery_voltage"`
	BatteryChargeCurrent    int                    `json:"battery_charge_current"`
	BatteryCapacity         int                    `json:"battery_capacity"`
	PVInputVoltage          float64                `json:"pv_input_voltage"`
	TotalChargeCurrent      int                    `json:"total_charge_current"`
	TotalACOutApparentPower int                    `json:"total_ac_out_apparent_power"`
	TotalACOutActivePower   int                    `json:"total_ac_out_active_power"`
	TotalACOutPercent       int                    `json:"total_ac_out_percent"`
	InverterStatus          ParallelInverterStatus `json:"inverter_status"`
	OutputMode              *int                   `json:"output_mode,omitempty"`
	ChargerSourcePriority   *int                   `json:"charger_source_priority,omitempty"`
	MaxChargeCurrent        *int                   `json:"max_charge_current,omitempty"`
	MaxChargeRange          *int                   `json:"max_charge_range,omitempty"`
	MaxACChargeCurrent      *int                   `json:"max_ac_charge_current,omitempty"`
	PVInputCurrent          *int                   `json:"pv_input_current,omitempty"`
	BatteryDischargeCurrent *int                   `json:"battery_discharge_current,omitempty"`
}

// ParallelStatus queries the status of parallel unit Index (QPGS0, QPGS1...).
type ParallelStatus struct {
	Index int
}

func (c ParallelStatus) Name() string    { return "QPGS" + strconv.Itoa(c.Index) }
func (c ParallelStatus) Request() []byte { return []byte(c.Name()) }

func (c ParallelStatus) ParseResponse(payload []byte) (ParallelStatusResponse, error) {
	var res ParallelStatusResponse
	op := c.Name()

	r, err := newFieldReader(op, payload, 20)
	if err != nil {
		return res, err
	}

	switch r.str(0) {
	case "0":
	case "1":
		res.Exists = true
	default:
		return res, pi30.NewPayloadError(op, "unexpected parallel flag %q", r.str(0))
	}
	res.SerialNumber = r.str(1)
	mode := r.str(2)
	if len(mode) != 1 {
		return ParallelStatusResponse{}, pi30.NewPayloadError(op, "expected a single work mode byte, got %q", mode)
	}
	res.WorkMode = Mode(mode[0])
	if _, ok := modeNames[res.WorkMode]; !ok {
		return ParallelStatusResponse{}, pi30.NewPayloadError(op, "unknown work mode %q", mode)
	}

	res.FaultCode = r.int(3, "fault_code")
	res.GridVoltage = r.float(4, "grid_voltage")
	res.GridFrequency = r.float(5, "grid_frequency")
	res.ACOutVoltage = r.float(6, "ac_out_voltage")
	res.ACOutFrequency = r.float(7, "ac_out_frequency")
	res.ACOutApparentPower = r.int(8, "ac_out_apparent_power")
	res.ACOutActivePower = r.int(9, "ac_out_active_power")
	res.LoadPercent = r.int(10, "load_percent")
	res.BatteryVoltage = r.float(11, "battery_voltage")
	res.BatteryChargeCurrent = r.int(12, "battery_charge_current")
	res.BatteryCapacity = r.int(13, "battery_capacity")
	res.PVInputVoltage = r.float(14, "pv_input_voltage")
	res.TotalChargeCurrent = r.int(15, "total_charge_current")
	res.TotalACOutApparentPower = r.int(16, "total_ac_out_apparent_power")
	res.TotalACOutActivePower = r.int(17, "total_ac_out_active_power")
	res.TotalACOutPercent = r.int(18, "total_ac_out_percent")
	b := r.bits(19, 8, "inverter_status")
	res.OutputMode = r.optInt(20, "output_mode")
	res.ChargerSourcePriority = r.optInt(21, "charger_source_priority")
	res.MaxChargeCurrent = r.optInt(22, "max_charge_current")
	res.MaxChargeRange = r.optInt(23, "max_charge_range")
	res.MaxACChargeCurrent = r.optInt(24, "max_ac_charge_current")
	res.PVInputCurrent = r.optInt(25, "pv_input_current")
	res.BatteryDischargeCurrent = r.optInt(26, "battery_discharge_current")
	if r.err != nil {
		return ParallelStatusResponse{}, r.err
	}

	res.InverterStatus = ParallelInverterStatus{
		SCCOk:                b[0],
		ACCharging:           b[1],
		SCCCharging:          b[2],
		LineLoss:             b[5],
		LoadOn:               b[6],
		ConfigurationChanged: b[7],
	}
	return res, nil
}
