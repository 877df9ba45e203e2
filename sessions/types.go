package sessions

import (
	"context"
)

// State describes whether the slot currently holds a session.
type State string

const (
	StateNone   State = "none"
	StateActive State = "active"
)

// Session is the per-session view handed to tool and engine code.
// Implementations MUST be safe for concurrent use.
type Session interface {
	SessionID() string
	// ProtocolVersion is the negotiated MCP protocol version, empty until the
	// client has sent initialize.
	ProtocolVersion() string
	ClientInfo() ClientInfo
}

// ClientInfo identifies the client connecting to the server.
type ClientInfo struct {
	Name    string
	Version string
}

// Transport is the outbound half of one connected client.
type Transport interface {
	// Send writes one JSON-RPC message to the client.
	Send(ctx context.Context, msg []byte) error
	// Close terminates the client connection. It must be safe to call more
	// than once.
	Close() error
}

// Dispatcher handles one inbound JSON-RPC message for a session. A nil reply
// means nothing is sent back (notifications, client responses).
type Dispatcher interface {
	HandleMessage(ctx context.Context, sess *Handle, msg []byte) (reply []byte, err error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, sess *Handle, msg []byte) ([]byte, error)

func (f DispatcherFunc) HandleMessage(ctx context.Context, sess *Handle, msg []byte) ([]byte, error) {
	return f(ctx, sess, msg)
}
