package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/cnc-capacity-mcp/internal/logctx"
	"github.com/google/uuid"
)

const releaseTimeout = 5 * time.Second

// Queue frames. A frame either carries a client message or tells the stream
// holding the session that it has been replaced.
const (
	frameMessage = "msg"
	frameClose   = "close"
)

type frame struct {
	Kind string          `json:"k"`
	Data json.RawMessage `json:"d,omitempty"`
}

var errReplaced = errors.New("session replaced")

// Manager is the session slot state machine. The zero value is not usable;
// construct with NewManager.
type Manager struct {
	host       SessionHost
	dispatcher Dispatcher
	log        *slog.Logger

	mu    sync.Mutex
	local map[string]*Handle
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = logctx.Wrap(log) }
}

// NewManager creates a Manager storing its slot in host and handing inbound
// messages to d.
func NewManager(host SessionHost, d Dispatcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		host:       host,
		dispatcher: d,
		log:        logctx.Wrap(nil),
		local:      make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open registers a new session bound to t and makes it the active one. Any
// session it replaces is closed. Messages posted after Open returns are
// queued for the new session until Serve is called.
func (m *Manager) Open(ctx context.Context, t Transport) (*Handle, error) {
	h := &Handle{
		m:         m,
		id:        uuid.NewString(),
		transport: t,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.local[h.id] = h
	m.mu.Unlock()

	prev, err := m.host.ClaimSlot(ctx, h.id)
	if err != nil {
		m.mu.Lock()
		delete(m.local, h.id)
		m.mu.Unlock()
		return nil, fmt.Errorf("claim session slot: %w", err)
	}

	if prev != "" && prev != h.id {
		m.log.InfoContext(ctx, "sessions.replace", slog.String("previous_session_id", prev), slog.String("session_id", h.id))
		m.evict(ctx, prev)
	}

	m.log.InfoContext(ctx, "sessions.open", slog.String("session_id", h.id))
	return h, nil
}

// Post routes one client message to the active session. When sessionID is
// non-empty it must name the active session.
func (m *Manager) Post(ctx context.Context, sessionID string, msg []byte) error {
	current, err := m.host.CurrentSlot(ctx)
	if err != nil {
		return fmt.Errorf("read session slot: %w", err)
	}
	if current == "" {
		return ErrNoActiveSession
	}
	if sessionID != "" && sessionID != current {
		return ErrSessionNotFound
	}

	data, err := json.Marshal(frame{Kind: frameMessage, Data: msg})
	if err != nil {
		return fmt.Errorf("encode message frame: %w", err)
	}
	if _, err := m.host.PublishSession(ctx, current, data); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Released between the slot read and the publish.
			return ErrNoActiveSession
		}
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Current returns the id of the active session, or "" when there is none.
func (m *Manager) Current(ctx context.Context) (string, error) {
	return m.host.CurrentSlot(ctx)
}

// State reports whether a session is active.
func (m *Manager) State(ctx context.Context) (State, error) {
	id, err := m.host.CurrentSlot(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return StateNone, nil
	}
	return StateActive, nil
}

// Close closes every session held by this process.
func (m *Manager) Close() error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.local))
	for _, h := range m.local {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// evict closes the session that lost the slot. Sessions held by another
// process are told through their queue.
func (m *Manager) evict(ctx context.Context, id string) {
	m.mu.Lock()
	prev, ok := m.local[id]
	m.mu.Unlock()

	if ok {
		if err := prev.Close(); err != nil {
			m.log.WarnContext(ctx, "sessions.evict.close.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		}
		return
	}

	data, _ := json.Marshal(frame{Kind: frameClose})
	if _, err := m.host.PublishSession(ctx, id, data); err != nil && !errors.Is(err, ErrSessionNotFound) {
		m.log.WarnContext(ctx, "sessions.evict.signal.fail", slog.String("session_id", id), slog.String("err", err.Error()))
	}
}

func (m *Manager) release(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	released, err := m.host.ReleaseSlot(ctx, h.id)
	if err != nil {
		m.log.ErrorContext(ctx, "sessions.release.fail", slog.String("session_id", h.id), slog.String("err", err.Error()))
	}
	if err := m.host.CleanupSession(ctx, h.id); err != nil {
		m.log.WarnContext(ctx, "sessions.cleanup.fail", slog.String("session_id", h.id), slog.String("err", err.Error()))
	}

	m.mu.Lock()
	delete(m.local, h.id)
	m.mu.Unlock()

	m.log.InfoContext(ctx, "sessions.close", slog.String("session_id", h.id), slog.Bool("slot_released", released), slog.Duration("age", time.Since(h.createdAt)))
}

func (m *Manager) deliver(ctx context.Context, h *Handle, msgID string, data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.log.ErrorContext(ctx, "sessions.deliver.decode.fail", slog.String("msg_id", msgID), slog.String("err", err.Error()))
		return nil
	}

	switch f.Kind {
	case frameClose:
		m.log.InfoContext(ctx, "sessions.replaced")
		_ = h.Close()
		return errReplaced
	case frameMessage:
	default:
		m.log.WarnContext(ctx, "sessions.deliver.unknown_frame", slog.String("kind", f.Kind))
		return nil
	}

	reply, err := m.dispatcher.HandleMessage(ctx, h, f.Data)
	if err != nil {
		m.log.ErrorContext(ctx, "sessions.dispatch.fail", slog.String("msg_id", msgID), slog.String("err", err.Error()))
		return nil
	}
	if reply == nil {
		return nil
	}
	if err := h.Send(ctx, reply); err != nil {
		m.log.WarnContext(ctx, "sessions.send.fail", slog.String("err", err.Error()))
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
