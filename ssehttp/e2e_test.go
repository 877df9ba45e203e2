package ssehttp_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/ggoodman/cnc-capacity-mcp/sessions/memoryhost"
	"github.com/ggoodman/cnc-capacity-mcp/ssehttp"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TestSSE_E2E drives the handler with the reference MCP client over its
// HTTP+SSE client transport.
func TestSSE_E2E(t *testing.T) {
	ctx := t.Context()

	h, err := ssehttp.New(memoryhost.New(), planner.NewServer())
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "e2e", Version: "0.0.0"}, &sdk.ClientOptions{})
	transport := &sdk.SSEClientTransport{Endpoint: srv.URL + ssehttp.DefaultSSEPath}
	cs, err := client.Connect(ctx, transport, &sdk.ClientSessionOptions{})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer cs.Close()

	lt, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(lt.Tools) != 1 || lt.Tools[0].Name != planner.ToolName {
		t.Fatalf("unexpected tools: %+v", lt.Tools)
	}

	tests := []struct {
		name    string
		args    map[string]any
		isError bool
		want    string
	}{
		{
			name: "op1-limited cell",
			args: map[string]any{"op1_cycle_time": 10, "op2_cycle_time": 8, "robot_move_time": 2},
			want: "Hourly output: 300.00 parts/hour",
		},
		{
			name: "op2-limited cell",
			args: map[string]any{"op1_cycle_time": 5, "op2_cycle_time": 20, "robot_move_time": 1},
			want: "Hourly output: 327.27 parts/hour",
		},
		{
			name:    "degenerate cell",
			args:    map[string]any{"op1_cycle_time": 0, "op2_cycle_time": 0, "robot_move_time": 0},
			isError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: planner.ToolName, Arguments: tt.args})
			if err != nil {
				t.Fatalf("CallTool failed: %v", err)
			}
			if res.IsError != tt.isError {
				t.Fatalf("isError: want %v got %v (%+v)", tt.isError, res.IsError, res.Content)
			}
			if len(res.Content) != 1 {
				t.Fatalf("unexpected content: %+v", res.Content)
			}
			text, ok := res.Content[0].(*sdk.TextContent)
			if !ok {
				t.Fatalf("expected text content, got %T", res.Content[0])
			}
			if tt.want != "" && !strings.Contains(text.Text, tt.want) {
				t.Fatalf("expected %q in:\n%s", tt.want, text.Text)
			}
		})
	}

	// The session survives tool-level failures.
	if err := cs.Ping(ctx, &sdk.PingParams{}); err != nil {
		t.Fatalf("Ping after failed call: %v", err)
	}
}
