package ssehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ggoodman/cnc-capacity-mcp/sessions"
)

var _ sessions.Transport = (*sseTransport)(nil)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeEvent writes one complete SSE frame and flushes it. The frame is
// assembled first so that concurrent writers never interleave.
func (l *lockedWriteFlusher) writeEvent(event string, data []byte) error {
	frame := make([]byte, 0, len(event)+len(data)+16)
	if event != "" {
		frame = append(frame, "event: "...)
		frame = append(frame, event...)
		frame = append(frame, '\n')
	}
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return l.writeFrame(frame)
}

// writeComment writes an SSE comment line, used for keep-alives.
func (l *lockedWriteFlusher) writeComment(text string) error {
	return l.writeFrame([]byte(": " + text + "\n\n"))
}

func (l *lockedWriteFlusher) writeFrame(frame []byte) error {
	if l.ctx != nil && l.ctx.Err() != nil {
		return l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return l.ctx.Err()
	}
	if _, err := l.Writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	l.Flusher.Flush()
	return nil
}

// sseTransport is the sessions.Transport for one open GET stream. Closing it
// cancels the stream context, which ends the GET handler.
type sseTransport struct {
	wf     *lockedWriteFlusher
	cancel context.CancelFunc
}

func (t *sseTransport) Send(ctx context.Context, msg []byte) error {
	return t.wf.writeEvent("message", msg)
}

func (t *sseTransport) Close() error {
	t.cancel()
	return nil
}
