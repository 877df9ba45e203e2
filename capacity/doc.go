// Package capacity models the throughput of a fixed machining cell: one
// material-handling robot feeding one primary station (OP1) and two identical
// secondary stations (OP2) that run in parallel.
//
// The model is a pure function of three cycle times:
//
//	effective OP2 time = OP2 cycle time / 2
//	bottleneck time    = max(OP1 cycle time, effective OP2 time) + robot move time
//	hourly output      = 3600 / bottleneck time
//
// Robot handling is treated as serialized with station processing, so it is
// added to every cycle rather than overlapped.
//
// # Errors
//
// Compute validates its input before doing any arithmetic. Negative or
// non-finite values yield an *InvalidArgumentError; an all-zero input (the only
// way to reach a zero bottleneck time) yields a *DegenerateInputError. Both can
// be matched with errors.Is against ErrInvalidArgument and ErrDegenerateInput.
//
// Example:
//
//	r, err := capacity.Compute(capacity.Input{Op1CycleTime: 10, Op2CycleTime: 8, RobotMoveTime: 2})
//	if err != nil { return err }
//	fmt.Println(r.HourlyOutput) // 300
package capacity
