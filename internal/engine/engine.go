package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/internal/jsonrpc"
	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
	"github.com/ggoodman/cnc-capacity-mcp/mcp"
	"github.com/ggoodman/cnc-capacity-mcp/mcpservice"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
)

// Engine is the protocol runtime of the server. It turns one inbound JSON-RPC
// message into at most one outbound message and is transport agnostic; the
// sessions package calls it for every message posted to a session.
type Engine struct {
	srv mcpservice.ServerCapabilities
	log *slog.Logger
}

var _ sessions.Dispatcher = (*Engine)(nil)

// EngineOption configures a Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = logctx.Wrap(l)
		}
	}
}

func NewEngine(srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		srv: srv,
		log: logctx.Wrap(slog.Default()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// HandleMessage implements sessions.Dispatcher. Protocol errors are answered
// with JSON-RPC error responses; the returned error is reserved for failures
// to encode a reply.
func (e *Engine) HandleMessage(ctx context.Context, sess *sessions.Handle, raw []byte) ([]byte, error) {
	if sess != nil {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
			SessionID:       sess.SessionID(),
			ProtocolVersion: sess.ProtocolVersion(),
			State:           string(sessions.StateActive),
		})
	}

	if !json.Valid(raw) {
		e.log.InfoContext(ctx, "engine.parse.fail")
		return encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
	}

	msg, err := jsonrpc.Parse(raw)
	if err != nil {
		e.log.InfoContext(ctx, "engine.parse.invalid", slog.String("err", err.Error()))
		if errors.Is(err, jsonrpc.ErrBatchUnsupported) {
			return encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "batch requests are not supported", nil))
		}
		return encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil))
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	switch msg.Type() {
	case "response":
		// The server never issues requests, so client responses have no waiter.
		e.log.DebugContext(ctx, "engine.client_response.ignored")
		return nil, nil
	case "notification":
		e.handleNotification(ctx, sess, msg.AsRequest())
		return nil, nil
	}

	res, err := e.HandleRequest(ctx, sess, msg.AsRequest())
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return encode(res)
}

// HandleRequest dispatches a request to its method handler.
func (e *Engine) HandleRequest(ctx context.Context, sess *sessions.Handle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch req.Method {
	case string(mcp.InitializeMethod):
		return e.handleInitialize(ctx, sess, req)
	case string(mcp.PingMethod):
		return jsonrpc.NewResultResponse(req.ID, struct{}{})
	case string(mcp.ToolsListMethod):
		return e.handleToolsList(ctx, sess, req)
	case string(mcp.ToolsCallMethod):
		return e.handleToolCall(ctx, sess, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil), nil
}

// InitializeSession negotiates the protocol version and builds the
// initialize result for the session.
func (e *Engine) InitializeSession(ctx context.Context, sess sessions.Session, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("initialize request required")
	}

	negotiatedVersion := req.ProtocolVersion
	if !mcp.IsSupportedProtocolVersion(negotiatedVersion) {
		negotiatedVersion = mcp.LatestProtocolVersion
		if v, ok, err := e.srv.GetPreferredProtocolVersion(ctx); err != nil {
			return nil, fmt.Errorf("get preferred protocol version: %w", err)
		} else if ok && v != "" {
			negotiatedVersion = v
		}
	}

	serverInfo, err := e.srv.GetServerInfo(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}

	initRes := &mcp.InitializeResult{
		ProtocolVersion: negotiatedVersion,
		Capabilities:    mcp.ServerCapabilities{},
		ServerInfo:      serverInfo,
	}

	if instr, ok, err := e.srv.GetInstructions(ctx, sess); err != nil {
		return nil, fmt.Errorf("get instructions: %w", err)
	} else if ok {
		initRes.Instructions = instr
	}

	if toolsCap, ok, err := e.srv.GetToolsCapability(ctx, sess); err != nil {
		return nil, fmt.Errorf("get tools capability: %w", err)
	} else if ok && toolsCap != nil {
		initRes.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}

	return initRes, nil
}

func (e *Engine) handleInitialize(ctx context.Context, sess *sessions.Handle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	var s sessions.Session
	if sess != nil {
		s = sess
	}
	res, err := e.InitializeSession(ctx, s, &params)
	if err != nil {
		return nil, err
	}

	if sess != nil {
		sess.SetNegotiated(res.ProtocolVersion, sessions.ClientInfo{
			Name:    params.ClientInfo.Name,
			Version: params.ClientInfo.Version,
		})
	}

	e.log.InfoContext(ctx, "engine.session.initialize",
		slog.String("protocol_version", res.ProtocolVersion),
		slog.String("requested_version", params.ProtocolVersion),
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolsList(ctx context.Context, sess *sessions.Handle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	tools, ok, err := e.toolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	var cursor *string
	if params.Cursor != "" {
		c := params.Cursor
		cursor = &c
	}

	page, err := tools.ListTools(ctx, sessionOf(sess), cursor)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))
	return jsonrpc.NewResultResponse(req.ID, result)
}

func (e *Engine) handleToolCall(ctx context.Context, sess *sessions.Handle, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: missing tool name", nil), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	tools, ok, err := e.toolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	res, err := tools.CallTool(ctx, sessionOf(sess), &params)
	if err != nil {
		if errors.Is(err, mcpservice.ErrToolNotFound) {
			e.log.InfoContext(ctx, "engine.handle_request.unknown_tool", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name), nil), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.log.InfoContext(ctx, "engine.handle_request.cancelled", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil), nil
		}
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Bool("is_error", res.IsError))
	return jsonrpc.NewResultResponse(req.ID, res)
}

// handleNotification processes client notifications. None of them produce a
// reply.
func (e *Engine) handleNotification(ctx context.Context, sess *sessions.Handle, note *jsonrpc.Request) {
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		if sess != nil {
			sess.MarkInitialized()
		}
		e.log.InfoContext(ctx, "engine.session.initialized")
	case string(mcp.CancelledNotificationMethod):
		// Requests are served one at a time, so by the time a cancellation is
		// read the request it names has already been answered.
		var params mcp.CancelledNotification
		if len(note.Params) > 0 {
			if err := json.Unmarshal(note.Params, &params); err != nil {
				e.log.DebugContext(ctx, "engine.cancel.decode.fail", slog.String("err", err.Error()))
				return
			}
		}
		e.log.InfoContext(ctx, "engine.cancel.ignored", slog.String("request_id", string(params.RequestID)), slog.String("reason", params.Reason))
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

func (e *Engine) toolsCapability(ctx context.Context, sess *sessions.Handle) (mcpservice.ToolsCapability, bool, error) {
	tools, ok, err := e.srv.GetToolsCapability(ctx, sessionOf(sess))
	if err != nil {
		return nil, false, fmt.Errorf("get tools capability: %w", err)
	}
	return tools, ok && tools != nil, nil
}

// sessionOf avoids handing a typed nil *Handle to capability code.
func sessionOf(sess *sessions.Handle) sessions.Session {
	if sess == nil {
		return nil
	}
	return sess
}

func encode(res *jsonrpc.Response) ([]byte, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return b, nil
}
