package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ggoodman/cnc-capacity-mcp/mcp"
)

func call(t *testing.T, args string) *mcp.CallToolResult {
	t.Helper()
	srv := NewServer()
	tools, ok, err := srv.GetToolsCapability(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("tools capability: ok=%v err=%v", ok, err)
	}
	res, err := tools.CallTool(context.Background(), nil, &mcp.CallToolRequestReceived{Name: ToolName, Arguments: json.RawMessage(args)})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 || res.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("expected a single text block, got %+v", res.Content)
	}
	return res.Content[0].Text
}

func TestServerIdentity(t *testing.T) {
	srv := NewServer()
	info, err := srv.GetServerInfo(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetServerInfo: %v", err)
	}
	if info.Name != "CNC-Automation-Planner" || info.Version != "1.0.0" {
		t.Fatalf("unexpected server info: %+v", info)
	}
	if _, ok, _ := srv.GetInstructions(context.Background(), nil); !ok {
		t.Fatalf("expected instructions")
	}
}

func TestToolDescriptor(t *testing.T) {
	tools := NewTools().Snapshot()
	if len(tools) != 1 {
		t.Fatalf("expected exactly one tool, got %d", len(tools))
	}
	d := tools[0]
	if d.Name != "calculate-cnc-capacity" {
		t.Fatalf("unexpected tool name %q", d.Name)
	}
	if d.InputSchema.AdditionalProperties {
		t.Fatalf("input schema must reject unknown properties")
	}
	for _, field := range []string{"op1_cycle_time", "op2_cycle_time", "robot_move_time"} {
		p, ok := d.InputSchema.Properties[field]
		if !ok {
			t.Fatalf("missing property %s", field)
		}
		if p.Type != "number" || p.Description == "" {
			t.Fatalf("property %s: unexpected schema %+v", field, p)
		}
		if p.Minimum == nil || *p.Minimum != 0 {
			t.Fatalf("property %s: expected minimum 0", field)
		}
	}
	if strings.Join(d.InputSchema.Required, ",") != "op1_cycle_time,op2_cycle_time,robot_move_time" {
		t.Fatalf("unexpected required list %v", d.InputSchema.Required)
	}
	if d.OutputSchema == nil {
		t.Fatalf("expected an output schema")
	}
	for _, field := range []string{"bottleneck_time", "hourly_output", "op1_utilization", "op2_utilization", "limiting_station"} {
		if _, ok := d.OutputSchema.Properties[field]; !ok {
			t.Fatalf("output schema missing %s", field)
		}
	}
	if d.Annotations == nil || !d.Annotations.ReadOnlyHint || !d.Annotations.IdempotentHint {
		t.Fatalf("expected read-only idempotent annotations")
	}
}

func TestCalculatePrimaryBottleneck(t *testing.T) {
	res := call(t, `{"op1_cycle_time":10,"op2_cycle_time":8,"robot_move_time":2}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	want := "CNC capacity simulation\n" +
		"--------------------------\n" +
		"● Bottleneck cycle (takt) time: 12 s\n" +
		"● Hourly output: 300.00 parts/hour\n" +
		"● OP1 utilization: 83.3%\n" +
		"● OP2 utilization: 33.3% (average of both stations)\n" +
		"--------------------------\n" +
		"Configuration: 1 x OP1, 2 x OP2, 1 x robot."
	if got := text(t, res); got != want {
		t.Fatalf("unexpected text:\n%s", got)
	}

	sc := res.StructuredContent
	if sc["bottleneck_time"] != 12.0 || sc["hourly_output"] != 300.0 || sc["limiting_station"] != "OP1" {
		t.Fatalf("unexpected structured content: %+v", sc)
	}
}

func TestCalculateSecondaryBottleneck(t *testing.T) {
	res := call(t, `{"op1_cycle_time":5,"op2_cycle_time":20,"robot_move_time":1}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	out := text(t, res)
	for _, want := range []string{"takt) time: 11 s", "Hourly output: 327.27 parts/hour", "OP1 utilization: 45.5%", "OP2 utilization: 90.9%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("text missing %q:\n%s", want, out)
		}
	}
	if res.StructuredContent["limiting_station"] != "OP2" {
		t.Fatalf("expected OP2 to limit the cell: %+v", res.StructuredContent)
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"all zero", `{"op1_cycle_time":0,"op2_cycle_time":0,"robot_move_time":0}`, "degenerate input"},
		{"subnormal cycle", `{"op1_cycle_time":1e-320,"op2_cycle_time":0,"robot_move_time":0}`, "out of range"},
		{"overflowing cycle", `{"op1_cycle_time":1.7e308,"op2_cycle_time":1,"robot_move_time":1.7e308}`, "out of range"},
		{"missing field", `{"op1_cycle_time":10,"op2_cycle_time":8}`, "robot_move_time"},
		{"no arguments", ``, "op1_cycle_time"},
		{"negative", `{"op1_cycle_time":-1,"op2_cycle_time":8,"robot_move_time":2}`, "op1_cycle_time"},
		{"non numeric", `{"op1_cycle_time":"ten","op2_cycle_time":8,"robot_move_time":2}`, "invalid arguments"},
		{"unknown field", `{"op1_cycle_time":10,"op2_cycle_time":8,"robot_move_time":2,"op3_cycle_time":1}`, "invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, tt.args)
			if !res.IsError {
				t.Fatalf("expected isError result, got %s", text(t, res))
			}
			if got := text(t, res); !strings.Contains(got, tt.want) {
				t.Fatalf("expected message to mention %q, got %q", tt.want, got)
			}
			if res.StructuredContent != nil {
				t.Fatalf("error results carry no structured content")
			}
		})
	}
}

func TestCalculateIsRepeatable(t *testing.T) {
	args := `{"op1_cycle_time":7.3,"op2_cycle_time":19.1,"robot_move_time":2.2}`
	first := text(t, call(t, args))
	for i := 0; i < 5; i++ {
		if again := text(t, call(t, args)); again != first {
			t.Fatalf("text changed between calls:\n%s\n%s", first, again)
		}
	}
}
