package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType string
		wantErr  bool
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, "request", false},
		{"string id request", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, "request", false},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification", false},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response", false},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, "response", false},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, "", true},
		{"request with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, "", true},
		{"empty response", `{"jsonrpc":"2.0","id":1}`, "", true},
		{"not json", `{"jsonrpc":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := msg.Type(); got != tt.wantType {
				t.Fatalf("type: want %s got %s", tt.wantType, got)
			}
		})
	}
}

func TestParseRejectsBatch(t *testing.T) {
	_, err := Parse([]byte(`  [{"jsonrpc":"2.0","id":1,"method":"ping"}]`))
	if !errors.Is(err, ErrBatchUnsupported) {
		t.Fatalf("expected ErrBatchUnsupported, got %v", err)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := msg.ID.String(); got != "42" {
		t.Fatalf("id string: want 42 got %q", got)
	}

	res, err := NewResultResponse(msg.ID, struct{}{})
	if err != nil {
		t.Fatalf("NewResultResponse: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"jsonrpc":"2.0","result":{},"id":42}`; string(b) != want {
		t.Fatalf("encoded response: want %s got %s", want, b)
	}
}

func TestErrorResponseWithoutID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`; string(b) != want {
		t.Fatalf("encoded response: want %s got %s", want, b)
	}
}
