package capacity

import (
	"math"
)

// SecondsPerHour converts a bottleneck time in seconds into parts per hour.
const SecondsPerHour = 3600

// Station identifies which part of the cell limits the cycle.
type Station string

const (
	StationOP1 Station = "OP1"
	StationOP2 Station = "OP2"
)

// Input holds the three timing parameters of the cell, in seconds.
type Input struct {
	// Op1CycleTime is the processing time of the primary station.
	Op1CycleTime float64 `json:"op1_cycle_time" yaml:"op1_cycle_time"`
	// Op2CycleTime is the processing time of one secondary station. Two
	// identical secondary stations run in parallel.
	Op2CycleTime float64 `json:"op2_cycle_time" yaml:"op2_cycle_time"`
	// RobotMoveTime is the average handling time the shared robot adds to
	// every cycle.
	RobotMoveTime float64 `json:"robot_move_time" yaml:"robot_move_time"`
}

// Validate rejects values that cannot describe a physical cycle time.
// Zero is accepted; an all-zero input is reported by Compute instead.
func (in Input) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"op1_cycle_time", in.Op1CycleTime},
		{"op2_cycle_time", in.Op2CycleTime},
		{"robot_move_time", in.RobotMoveTime},
	} {
		switch {
		case math.IsNaN(f.v):
			return &InvalidArgumentError{Field: f.name, Value: f.v, Reason: "must be a number"}
		case math.IsInf(f.v, 0):
			return &InvalidArgumentError{Field: f.name, Value: f.v, Reason: "must be finite"}
		case f.v < 0:
			return &InvalidArgumentError{Field: f.name, Value: f.v, Reason: "must not be negative"}
		}
	}
	return nil
}

// Compute derives the capacity report for the cell. It is deterministic and
// free of side effects.
func Compute(in Input) (Report, error) {
	if err := in.Validate(); err != nil {
		return Report{}, err
	}

	effectiveOp2 := in.Op2CycleTime / 2

	limiting := StationOP1
	slowest := in.Op1CycleTime
	if effectiveOp2 > slowest {
		limiting = StationOP2
		slowest = effectiveOp2
	}

	bottleneck := slowest + in.RobotMoveTime
	if bottleneck == 0 {
		return Report{}, &DegenerateInputError{Input: in}
	}

	r := Report{
		Input:            in,
		EffectiveOp2Time: effectiveOp2,
		BottleneckTime:   bottleneck,
		HourlyOutput:     round(SecondsPerHour/bottleneck, 2),
		Op1Utilization:   round(100*(in.Op1CycleTime/bottleneck), 1),
		Op2Utilization:   round(100*(effectiveOp2/bottleneck), 1),
		LimitingStation:  limiting,
	}
	for _, v := range []float64{r.BottleneckTime, r.HourlyOutput, r.Op1Utilization, r.Op2Utilization} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return Report{}, &DegenerateInputError{Input: in, OutOfRange: true}
		}
	}
	return r, nil
}

// round rounds v half away from zero to the given number of decimal places.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
