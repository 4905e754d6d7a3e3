// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

// BatteryType is the configured battery chemistry.
type BatteryType int

const (
	BatteryAGM BatteryType = iota
	BatteryFlooded
	BatteryUser
)

func (b BatteryType) String() string {
	switch b {
	case BatteryAGM:
		return "agm"
	case BatteryFlooded:
		return "flooded"
	case BatteryUser:
		return "user"
	}
	return "other"
}

// OutputSourcePriority selects what powers the load.
type OutputSourcePriority int

const (
	OutputUtilityFirst OutputSourcePriority = iota
	OutputSolarFirst
	OutputSBUFirst
)

func (o OutputSourcePriority) String() string {
	switch o {
	case OutputUtilityFirst:
		return "utility_first"
	case OutputSolarFirst:
		return "solar_first"
	case OutputSBUFirst:
		return "sbu_first"
	}
	return "unknown"
}

// ChargerSourcePriority selects what charges the battery.
type ChargerSourcePriority int

const (
	ChargerUtilityFirst ChargerSourcePriority = iota
	ChargerSolarFirst
	ChargerSolarAndUtility
	ChargerSolarOnly
)

func (c ChargerSourcePriority) String() string {
	switch c {
	case ChargerUtilityFirst:
		return "utility_first"
	case ChargerSolarFirst:
		return "solar_first"
	case ChargerSolarAndUtility:
		return "solar_and_utility"
	case ChargerSolarOnly:
		return "solar_only"
	}
	return "unknown"
}

// RatingInfoResponse is the QPIRI reading.
type RatingInfoResponse struct {
	GridRatingVoltage         float64               `json:"grid_rating_voltage"`
	GridRatingCurrent         float64               `json:"grid_rating_current"`
	ACOutRatingVoltage        float64               `json:"ac_output_rating_voltage"`
	ACOutRatingFrequency      float64               `json:"ac_out_rating_frequency"`
	ACOutRatingCurrent        float64               `json:"ac_out_rating_current"`
	ACOutRatingApparentPower  int                   `json:"ac_out_rating_apparent_power"`
	ACOutRatingActivePower    int                   `json:"ac_out_rating_active_power"`
	BatteryRatingVoltage      float64               `json:"battery_rating_voltage"`
	BatteryRechargeVoltage    float64               `json:"battery_recharge_voltage"`
	BatteryUnderVoltage       float64               `json:"battery_under_voltage"`
	BatteryBulkVoltage        float64               `json:"battery_bulk_voltage"`
	BatteryFloatVoltage       float64               `json:"battery_float_voltage"`
	BatteryType               BatteryType           `json:"battery_type"`
	MaxACChargingCurrent      int                   `json:"max_ac_charging_current"`
	MaxChargingCurrent        int                   `json:"max_charging_current"`
	InputVoltageRange         int                   `json:"input_voltage_range"`
	OutputSourcePriority      OutputSourcePriority  `json:"output_source_priority"`
	ChargerSourcePriority     ChargerSourcePriority `json:"charger_source_priority"`
	ParallelMaxNum            int                   `json:"parallel_max_num"`
	MachineType               string                `json:"machine_type"`
	Topology                  int                   `json:"topology"`
	OutputMode                *int                  `json:"output_mode,omitempty"`
	BatteryRedischargeVoltage *float64              `json:"battery_redischarge_voltage,omitempty"`
	PVOKCondition             *int                  `json:"pv_ok_condition,omitempty"`
	PVPowerBalance            *int                  `json:"pv_power_balance,omitempty"`
}

// RatingInfo queries the device rating information (QPIRI).
type RatingInfo struct{}

func (RatingInfo) Name() string    { return "QPIRI" }
func (RatingInfo) Request() []byte { return []byte("QPIRI") }

func (RatingInfo) ParseResponse(payload []byte) (RatingInfoResponse, error) {
	var res RatingInfoResponse

	r, err := newFieldReader("QPIRI", payload, 21)
	if err != nil {
		return res, err
	}

	res.GridRatingVoltage = r.float(0, "grid_rating_voltage")
	res.GridRatingCurrent = r.float(1, "grid_rating_current")
	res.ACOutRatingVoltage = r.float(2, "ac_output_rating_voltage")
	res.ACOutRatingFrequency = r.float(3, "ac_out_rating_frequency")
	res.ACOutRatingCurrent = r.float(4, "ac_out_rating_current")
	res.ACOutRatingApparentPower = r.int(5, "ac_out_rating_apparent_power")
	res.ACOutRatingActivePower = r.int(6, "ac_out_rating_active_power")
	res.BatteryRatingVoltage = r.float(7, "battery_rating_voltage")
	res.BatteryRechargeVoltage = r.float(8, "battery_recharge_voltage")
	res.BatteryUnderVoltage = r.float(9, "battery_under_voltage")
	res.BatteryBulkVoltage = r.float(10, "battery_bulk_voltage")
	res.BatteryFloatVoltage = r.float(11, "battery_float_voltage")
	res.BatteryType = BatteryType(r.int(12, "battery_type"))
	res.MaxACChargingCurrent = r.int(13, "max_ac_charging_current")
	res.MaxChargingCurrent = r.int(14, "max_charging_current")
	res.InputVoltageRange = r.int(15, "input_voltage_range")
	res.OutputSourcePriority = OutputSourcePriority(r.int(16, "output_source_priority"))
	res.ChargerSourcePriority = ChargerSourcePriority(r.int(17, "charger_source_priority"))
	res.ParallelMaxNum = r.int(18, "parallel_max_num")
	res.MachineType = r.str(19)
	res.Topology = r.int(20, "topology")
	res.OutputMode = r.optInt(21, "output_mode")
	res.BatteryRedischargeVoltage = r.optFloat(22, "battery_redischarge_voltage")
	res.PVOKCondition = r.optInt(23, "pv_ok_condition")
	res.PVPowerBalance = r.optInt(24, "pv_power_balance")
	if r.err != nil {
		return RatingInfoResponse{}, r.err
	}
	return res, nil
}
