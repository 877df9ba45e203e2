package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := Wrap(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r-1", Method: "POST", Path: "/messages"})
	ctx = WithSessionData(ctx, &SessionData{SessionID: "s-1", State: "active"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "calculate-cnc-capacity"})

	log.InfoContext(ctx, "rpc.inbound.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v (%s)", err, buf.String())
	}

	check := func(group, key, want string) {
		t.Helper()
		g, ok := rec[group].(map[string]any)
		if !ok {
			t.Fatalf("missing group %q in %v", group, rec)
		}
		if got, _ := g[key].(string); got != want {
			t.Fatalf("%s.%s: want %q got %q", group, key, want, got)
		}
	}
	check("req", "id", "r-1")
	check("req", "path", "/messages")
	check("sess", "id", "s-1")
	check("sess", "state", "active")
	check("rpc", "method", "tools/call")
	check("tool", "name", "calculate-cnc-capacity")
}

func TestWrapNilDiscards(t *testing.T) {
	log := Wrap(nil)
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("expected discard logger")
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	log := Wrap(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if again := Wrap(log); again != log {
		t.Fatalf("expected wrapping an already wrapped logger to return it unchanged")
	}
}
