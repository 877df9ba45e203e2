package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
)

var _ Session = (*Handle)(nil)

// Handle is one open session. It is returned by Manager.Open and stays valid
// until it is closed, either by the caller, by its stream ending, or by a
// newer session taking the slot.
type Handle struct {
	m         *Manager
	id        string
	transport Transport
	createdAt time.Time

	mu              sync.RWMutex
	protocolVersion string
	clientInfo      ClientInfo
	initialized     bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (h *Handle) SessionID() string { return h.id }

func (h *Handle) ProtocolVersion() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.protocolVersion
}

func (h *Handle) ClientInfo() ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientInfo
}

// Initialized reports whether the client confirmed the handshake with
// notifications/initialized.
func (h *Handle) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized
}

// SetNegotiated records the outcome of initialize.
func (h *Handle) SetNegotiated(protocolVersion string, client ClientInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.protocolVersion = protocolVersion
	h.clientInfo = client
}

// MarkInitialized records that the client finished the handshake.
func (h *Handle) MarkInitialized() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initialized = true
}

// Send writes msg to the client unless the session is closed.
func (h *Handle) Send(ctx context.Context, msg []byte) error {
	select {
	case <-h.done:
		return ErrSessionClosed
	default:
	}
	return h.transport.Send(ctx, msg)
}

// Done is closed once the session is closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close ends the session: the transport is closed and the slot is released if
// this session still holds it. Close is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.closeErr = h.transport.Close()
		h.m.release(h)
	})
	return h.closeErr
}

// Serve delivers queued client messages to the dispatcher, in order, until ctx
// ends or the session is closed. The session is always closed when Serve
// returns.
func (h *Handle) Serve(ctx context.Context) error {
	defer h.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: h.id, State: string(StateActive)})

	err := h.m.host.SubscribeSession(ctx, h.id, func(ctx context.Context, msgID string, msg []byte) error {
		return h.m.deliver(ctx, h, msgID, msg)
	})
	switch {
	case errors.Is(err, errReplaced), errors.Is(err, ErrSessionNotFound):
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return err
}
