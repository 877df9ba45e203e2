package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/cnc-capacity-mcp/internal/engine"
	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
	"github.com/ggoodman/cnc-capacity-mcp/mcpservice"
	"github.com/ggoodman/cnc-capacity-mcp/sessions"
	"github.com/ggoodman/cnc-capacity-mcp/sessions/memoryhost"
)

const maxLineSize = 1 << 20

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all MCP semantics to the provided
// mcpservice.ServerCapabilities.
type Handler struct {
	srv mcpservice.ServerCapabilities
	r   io.Reader
	w   io.Writer
	l   *slog.Logger
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{srv: srv, r: os.Stdin, w: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// lineWriter writes one JSON-RPC message per line.
type lineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func (lw *lineWriter) Send(ctx context.Context, msg []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.closed {
		return sessions.ErrSessionClosed
	}
	if _, err := lw.w.Write(append(bytes.TrimSpace(msg), '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (lw *lineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.closed = true
	return nil
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	if h.srv == nil {
		return fmt.Errorf("server is required")
	}

	eng := engine.NewEngine(h.srv, engine.WithLogger(h.l))
	mgr := sessions.NewManager(memoryhost.New(), eng, sessions.WithLogger(h.l))
	sess, err := mgr.Open(ctx, &lineWriter{w: h.w})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.SessionID(), State: string(sessions.StateActive)})
	h.l.InfoContext(ctx, "stdio.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.stop", slog.String("reason", "context"))
			return nil
		case err := <-readErr:
			if err != nil && !errors.Is(err, io.EOF) {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("read input: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.stop", slog.String("reason", "eof"))
			return nil
		case line := <-lines:
			reply, err := eng.HandleMessage(ctx, sess, line)
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.dispatch.fail", slog.String("err", err.Error()))
				continue
			}
			if reply == nil {
				continue
			}
			if err := sess.Send(ctx, reply); err != nil {
				return err
			}
		}
	}
}
