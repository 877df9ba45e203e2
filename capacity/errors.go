package capacity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument matches any *InvalidArgumentError.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDegenerateInput matches any *DegenerateInputError.
	ErrDegenerateInput = errors.New("degenerate input")
)

// InvalidArgumentError reports a timing input that cannot describe a real
// cycle: negative, NaN or infinite, or absent when decoded from a request.
type InvalidArgumentError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidArgument.
func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// DegenerateInputError is returned when the inputs admit no finite capacity
// figures: every timing input is zero, or the values are so far apart that
// the bottleneck, throughput or utilization overflows float64.
type DegenerateInputError struct {
	Input Input
	// OutOfRange is set when the bottleneck is non-zero but a derived figure
	// is not finite.
	OutOfRange bool
}

func (e *DegenerateInputError) Error() string {
	if e.OutOfRange {
		return "degenerate input: cycle times are out of range, capacity figures are not finite"
	}
	return "degenerate input: bottleneck time is zero (all cycle times are zero), throughput is undefined"
}

// Is reports whether target is ErrDegenerateInput.
func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }
