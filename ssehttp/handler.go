package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/cnc-capacity-mcp/internal/engine"
	"github.com/ggoodman/cnc-capacity-mcp/internal/jsonrpc"
	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
	"github.com/ggoodman/cnc-capacity-mcp/mcpservice"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

const (
	DefaultSSEPath      = "/sse"
	DefaultMessagesPath = "/messages"
	DefaultKeepAlive    = 25 * time.Second

	sessionIDParam = "sessionId"
	maxMessageSize = 1 << 20
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections. This is
// transport-level, not JSON-RPC framing.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger       *slog.Logger
	ssePath      string
	messagesPath string
	keepAlive    time.Duration
	managerOpts  []sessions.ManagerOption
}

// WithLogger sets the logger used by the handler, the engine and the session
// manager. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithSSEPath sets the path that opens the event stream.
func WithSSEPath(p string) Option {
	return func(c *newConfig) { c.ssePath = p }
}

// WithMessagesPath sets the path clients POST messages to. It is also the
// path announced in the endpoint event.
func WithMessagesPath(p string) Option {
	return func(c *newConfig) { c.messagesPath = p }
}

// WithKeepAlive sets the interval between keep-alive comments on an idle
// stream. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(c *newConfig) { c.keepAlive = d }
}

// WithManagerOptions passes options through to the sessions.Manager.
func WithManagerOptions(opts ...sessions.ManagerOption) Option {
	return func(c *newConfig) { c.managerOpts = append(c.managerOpts, opts...) }
}

// Handler implements the HTTP+SSE transport of the Model Context Protocol.
type Handler struct {
	mux          *http.ServeMux
	log          *slog.Logger
	eng          *engine.Engine
	manager      *sessions.Manager
	ssePath      string
	messagesPath string
	keepAlive    time.Duration
}

// New constructs a Handler serving server. The single session slot and the
// message queues live in host.
func New(host sessions.SessionHost, server mcpservice.ServerCapabilities, opts ...Option) (*Handler, error) {
	if server == nil {
		return nil, fmt.Errorf("server is required")
	}
	if host == nil {
		return nil, fmt.Errorf("SessionHost is required")
	}

	cfg := &newConfig{
		ssePath:      DefaultSSEPath,
		messagesPath: DefaultMessagesPath,
		keepAlive:    DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	for _, p := range []string{cfg.ssePath, cfg.messagesPath} {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("path %q must start with /", p)
		}
	}
	if cfg.ssePath == cfg.messagesPath {
		return nil, fmt.Errorf("stream and messages paths must differ, both are %q", cfg.ssePath)
	}
	if cfg.keepAlive < 0 {
		return nil, fmt.Errorf("keep-alive interval must not be negative")
	}

	log := logctx.Wrap(cfg.logger)
	h := &Handler{
		log:          log,
		ssePath:      cfg.ssePath,
		messagesPath: cfg.messagesPath,
		keepAlive:    cfg.keepAlive,
	}
	h.eng = engine.NewEngine(server, engine.WithLogger(log))
	h.manager = sessions.NewManager(host, h.eng, append([]sessions.ManagerOption{sessions.WithLogger(log)}, cfg.managerOpts...)...)

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", h.ssePath), h.handleGetSSE)
	mux.HandleFunc(fmt.Sprintf("POST %s", h.messagesPath), h.handlePostMessage)
	h.mux = mux
	return h, nil
}

// Manager exposes the session manager, e.g. for status reporting.
func (h *Handler) Manager() *sessions.Manager { return h.manager }

// Close ends every stream held by this handler.
func (h *Handler) Close() error { return h.manager.Close() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleGetSSE opens the event stream, making the new session the active one.
// It blocks until the client goes away or the session is replaced.
func (h *Handler) handleGetSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "accept must allow text/event-stream")
			h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			return
		}
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}

	sess, err := h.manager.Open(streamCtx, &sseTransport{wf: wf, cancel: cancel})
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unable to open session")
		h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.SessionID(), State: string(sessions.StateActive)})
	h.log.InfoContext(ctx, "session.open.ok")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	endpoint := h.messagesPath + "?" + url.Values{sessionIDParam: {sess.SessionID()}}.Encode()
	if err := wf.writeEvent("endpoint", []byte(endpoint)); err != nil {
		_ = sess.Close()
		h.log.WarnContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	if h.keepAlive > 0 {
		go h.keepAliveLoop(streamCtx, wf)
	}

	if err := sess.Serve(streamCtx); err != nil {
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) keepAliveLoop(ctx context.Context, wf *lockedWriteFlusher) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wf.writeComment("keep-alive"); err != nil {
				if ctx.Err() == nil {
					h.log.WarnContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				}
				return
			}
		}
	}
}

// handlePostMessage accepts one JSON-RPC message for the active session. The
// reply, if any, is delivered over the event stream.
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
		} else {
			writeJSONError(w, http.StatusBadRequest, "unable to read body")
		}
		h.log.WarnContext(ctx, "message.read.fail", slog.String("err", err.Error()))
		return
	}

	msg, err := jsonrpc.Parse(body)
	if err != nil {
		if errors.Is(err, jsonrpc.ErrBatchUnsupported) {
			writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
			h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}

	rpc := &logctx.RPCMessage{Method: msg.Method, Type: msg.Type()}
	if msg.ID != nil {
		rpc.ID = msg.ID.String()
	}
	ctx = logctx.WithRPCMessage(ctx, rpc)

	sessionID := r.URL.Query().Get(sessionIDParam)
	if sessionID != "" {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})
	}

	if err := h.manager.Post(ctx, sessionID, body); err != nil {
		switch {
		case errors.Is(err, sessions.ErrNoActiveSession):
			writeJSONError(w, http.StatusBadRequest, "no active session")
			h.log.WarnContext(ctx, "message.post.no_session")
		case errors.Is(err, sessions.ErrSessionNotFound):
			writeJSONError(w, http.StatusNotFound, "session not found")
			h.log.WarnContext(ctx, "message.post.session_not_found")
		default:
			writeJSONError(w, http.StatusInternalServerError, "unable to deliver message")
			h.log.ErrorContext(ctx, "message.post.fail", slog.String("err", err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
	h.log.InfoContext(ctx, "message.post.ok", slog.Duration("dur", time.Since(start)))
}
