package memoryhost

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/cnc-capacity-mcp/sessions"
)

var errAlreadySubscribed = errors.New("session queue already has a subscriber")

var _ sessions.SessionHost = (*Host)(nil)

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu      sync.Mutex
	current string
	queues  map[string]*queue
	counter atomic.Int64
}

type queue struct {
	mu         sync.Mutex
	messages   []message
	subscribed bool

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

type message struct {
	id   string
	data []byte
}

func New() *Host {
	return &Host{queues: make(map[string]*queue)}
}

func newQueue() *queue {
	return &queue{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// --- Slot ---

func (h *Host) ClaimSlot(ctx context.Context, sessionID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current
	h.current = sessionID
	if _, ok := h.queues[sessionID]; !ok {
		h.queues[sessionID] = newQueue()
	}
	return prev, nil
}

func (h *Host) CurrentSlot(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, nil
}

func (h *Host) ReleaseSlot(ctx context.Context, sessionID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != sessionID || sessionID == "" {
		return false, nil
	}
	h.current = ""
	return true, nil
}

// --- Messaging ---

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	q := h.lookup(sessionID)
	if q == nil {
		return "", sessions.ErrSessionNotFound
	}

	evID := strconv.FormatInt(h.counter.Add(1), 10)

	q.mu.Lock()
	q.messages = append(q.messages, message{id: evID, data: append([]byte(nil), data...)})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evID, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, handler sessions.MessageHandlerFunction) error {
	q := h.lookup(sessionID)
	if q == nil {
		return sessions.ErrSessionNotFound
	}

	q.mu.Lock()
	if q.subscribed {
		q.mu.Unlock()
		return errAlreadySubscribed
	}
	q.subscribed = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.subscribed = false
		q.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return nil
		default:
		}

		if msg, ok := q.pop(); ok {
			if err := handler(ctx, msg.id, msg.data); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return nil
		case <-q.notify:
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	q, ok := h.queues[sessionID]
	delete(h.queues, sessionID)
	h.mu.Unlock()

	if ok {
		q.closeOnce.Do(func() { close(q.closed) })
	}
	return nil
}

func (h *Host) lookup(sessionID string) *queue {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queues[sessionID]
}

func (q *queue) pop() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return message{}, false
	}
	msg := q.messages[0]
	q.messages[0] = message{}
	q.messages = q.messages[1:]
	return msg, true
}
