package planner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/cnc-capacity-mcp/capacity"
	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
	"github.com/ggoodman/cnc-capacity-mcp/mcp"
	"github.com/ggoodman/cnc-capacity-mcp/mcpservice"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
)

const (
	ServerName    = "CNC-Automation-Planner"
	ServerVersion = "1.0.0"
	ToolName      = "calculate-cnc-capacity"
)

const instructions = "Use calculate-cnc-capacity to estimate the throughput of a machining cell " +
	"with one robot, one OP1 machine and two parallel OP2 machines. All times are in seconds."

// CalculateArgs is the input of calculate-cnc-capacity. Pointers distinguish
// an omitted argument from an explicit zero.
type CalculateArgs struct {
	Op1CycleTime  *float64 `json:"op1_cycle_time" jsonschema:"minimum=0,description=OP1 machining cycle time in seconds"`
	Op2CycleTime  *float64 `json:"op2_cycle_time" jsonschema:"minimum=0,description=Machining cycle time of one OP2 machine in seconds"`
	RobotMoveTime *float64 `json:"robot_move_time" jsonschema:"minimum=0,description=Average robot transfer and load/unload time per cycle in seconds"`
}

// Input converts the arguments into a capacity.Input, reporting the first
// missing argument.
func (a CalculateArgs) Input() (capacity.Input, error) {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"op1_cycle_time", a.Op1CycleTime},
		{"op2_cycle_time", a.Op2CycleTime},
		{"robot_move_time", a.RobotMoveTime},
	} {
		if f.v == nil {
			return capacity.Input{}, &capacity.InvalidArgumentError{Field: f.name, Reason: "is required"}
		}
	}
	return capacity.Input{
		Op1CycleTime:  *a.Op1CycleTime,
		Op2CycleTime:  *a.Op2CycleTime,
		RobotMoveTime: *a.RobotMoveTime,
	}, nil
}

// Compute runs the capacity model on the arguments.
func (a CalculateArgs) Compute() (capacity.Report, error) {
	in, err := a.Input()
	if err != nil {
		return capacity.Report{}, err
	}
	return capacity.Compute(in)
}

// Option configures the planner server.
type Option func(*config)

type config struct {
	log *slog.Logger
}

// WithLogger sets the logger used by the tool handler.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// NewServer returns the MCP server capabilities of the planner.
func NewServer(opts ...Option) mcpservice.ServerCapabilities {
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: ServerName, Version: ServerVersion}),
		mcpservice.WithInstructions(instructions),
		mcpservice.WithToolsCapability(NewTools(opts...)),
	)
}

// NewTools returns a container holding calculate-cnc-capacity.
func NewTools(opts ...Option) *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(CalculateTool(opts...))
}

// CalculateTool builds the calculate-cnc-capacity tool.
func CalculateTool(opts ...Option) mcpservice.StaticTool {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := logctx.Wrap(cfg.log)

	return mcpservice.NewToolWithOutput[CalculateArgs, capacity.Report](ToolName,
		func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriterTyped[capacity.Report], r *mcpservice.ToolRequest[CalculateArgs]) error {
			report, err := r.Args().Compute()
			if err != nil {
				if !errors.Is(err, capacity.ErrInvalidArgument) && !errors.Is(err, capacity.ErrDegenerateInput) {
					return err
				}
				log.InfoContext(ctx, "planner.calculate.rejected", slog.String("err", err.Error()))
				w.SetError(true)
				return w.AppendText(err.Error())
			}

			log.InfoContext(ctx, "planner.calculate.ok",
				slog.Float64("bottleneck_time", report.BottleneckTime),
				slog.Float64("hourly_output", report.HourlyOutput),
				slog.String("limiting_station", string(report.LimitingStation)),
			)
			w.SetStructured(report)
			return w.AppendText(report.Text())
		},
		mcpservice.WithToolTitle("CNC capacity simulation"),
		mcpservice.WithToolDescription("Simulate the capacity of a CNC cell where one robot loads and unloads one OP1 machine and two OP2 machines. Returns the bottleneck cycle time and hourly output of the cell along with station utilization."),
		mcpservice.WithToolAnnotations(mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true}),
	)
}
