// Package planner binds the capacity model to MCP. It exposes a single tool,
// calculate-cnc-capacity, on a server identifying itself as
// CNC-Automation-Planner.
//
// The tool accepts three required numeric arguments, all in seconds:
//
//	op1_cycle_time   machining time of the OP1 machine
//	op2_cycle_time   machining time of one of the two OP2 machines
//	robot_move_time  average robot transfer and load/unload time per cycle
//
// and answers with the plain-text report from capacity.Report.Text plus the
// same figures as structuredContent. Missing, negative, non-finite or
// non-numeric arguments, and an all-zero input, produce a tool result with
// isError set; they never fail the JSON-RPC request.
package planner
