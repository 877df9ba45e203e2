package capacity

import (
	"strconv"
	"strings"
)

const reportRule = "--------------------------"

// Report is the derived capacity of the cell for one Input.
type Report struct {
	Input Input `json:"input" yaml:"input"`
	// EffectiveOp2Time is the per-part contribution of the secondary pair.
	EffectiveOp2Time float64 `json:"effective_op2_time" yaml:"effective_op2_time"`
	// BottleneckTime is the limiting cycle time of the whole cell, in seconds.
	BottleneckTime float64 `json:"bottleneck_time" yaml:"bottleneck_time"`
	// HourlyOutput is parts per hour, rounded to two decimal places.
	HourlyOutput float64 `json:"hourly_output" yaml:"hourly_output"`
	// Op1Utilization is the percent of the bottleneck time OP1 spends working.
	Op1Utilization float64 `json:"op1_utilization" yaml:"op1_utilization"`
	// Op2Utilization is the average percent of the bottleneck time each of
	// the two secondary stations spends working.
	Op2Utilization float64 `json:"op2_utilization" yaml:"op2_utilization"`
	// LimitingStation is the station whose time sets the bottleneck. OP1 wins
	// a tie.
	LimitingStation Station `json:"limiting_station" yaml:"limiting_station"`
}

// Text renders the report as the plain-text payload returned to tool callers.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("CNC capacity simulation\n")
	b.WriteString(reportRule + "\n")
	b.WriteString("● Bottleneck cycle (takt) time: " + strconv.FormatFloat(r.BottleneckTime, 'f', -1, 64) + " s\n")
	b.WriteString("● Hourly output: " + strconv.FormatFloat(r.HourlyOutput, 'f', 2, 64) + " parts/hour\n")
	b.WriteString("● OP1 utilization: " + strconv.FormatFloat(r.Op1Utilization, 'f', 1, 64) + "%\n")
	b.WriteString("● OP2 utilization: " + strconv.FormatFloat(r.Op2Utilization, 'f', 1, 64) + "% (average of both stations)\n")
	b.WriteString(reportRule + "\n")
	b.WriteString("Configuration: 1 x OP1, 2 x OP2, 1 x robot.")
	return b.String()
}
