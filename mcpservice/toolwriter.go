package mcpservice

import (
	"context"
	"errors"

	"github.com/ggoodman/cnc-capacity-mcp/mcp"
)

// ToolResponseWriter collects the text a tool handler produces and whether
// the call failed at the tool level.
type ToolResponseWriter interface {
	// AppendText adds one text content block. Empty text is dropped.
	AppendText(text string) error
	SetError(isError bool)
	// Result finalizes the writer. Calling it again returns an equal result.
	Result() *mcp.CallToolResult
}

// ErrFinalized is returned by AppendText once Result has been called.
var ErrFinalized = errors.New("result already finalized")

// textWriter is used by a single handler invocation and is not shared.
type textWriter struct {
	ctx       context.Context
	texts     []string
	isError   bool
	finalized bool
}

func newToolResponseWriter(ctx context.Context) *textWriter {
	return &textWriter{ctx: ctx}
}

func (w *textWriter) AppendText(text string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if w.finalized {
		return ErrFinalized
	}
	if text != "" {
		w.texts = append(w.texts, text)
	}
	return nil
}

func (w *textWriter) SetError(isError bool) { w.isError = isError }

func (w *textWriter) Result() *mcp.CallToolResult {
	w.finalized = true
	content := make([]mcp.ContentBlock, 0, len(w.texts))
	for _, t := range w.texts {
		content = append(content, mcp.ContentBlock{Type: mcp.ContentTypeText, Text: t})
	}
	return &mcp.CallToolResult{Content: content, IsError: w.isError}
}
