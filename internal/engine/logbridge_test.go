package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// logBridge is an implementation of slog.Handler that works
// with the stdlib testing pkg.
type logBridge struct {
	slog.Handler
	t     testing.TB
	buf   *bytes.Buffer
	mu    *sync.Mutex
	ended *bool
}

// Handle implements slog.Handler.
func (b *logBridge) Handle(ctx context.Context, rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if *b.ended {
		return nil
	}

	if err := b.Handler.Handle(ctx, rec); err != nil {
		return err
	}

	output, err := io.ReadAll(b.buf)
	if err != nil {
		return err
	}

	// The output comes back with a newline, which we need to
	// trim before feeding to t.Log.
	output = bytes.TrimSuffix(output, []byte("\n"))

	b.t.Helper()
	b.t.Log(string(output))

	return nil
}

// WithAttrs implements slog.Handler.
func (b *logBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, ended: b.ended, Handler: b.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (b *logBridge) WithGroup(name string) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, ended: b.ended, Handler: b.Handler.WithGroup(name)}
}

func testLogger(t *testing.T) *slog.Logger {
	b := &logBridge{
		t:     t,
		buf:   &bytes.Buffer{},
		mu:    &sync.Mutex{},
		ended: new(bool),
	}
	b.Handler = slog.NewTextHandler(b.buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	// Goroutines may still log while the test winds down; t.Log panics
	// once the test has completed.
	t.Cleanup(func() {
		b.mu.Lock()
		*b.ended = true
		b.mu.Unlock()
	})
	return slog.New(b)
}
