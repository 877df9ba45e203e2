package sessions

import (
	"context"
)

// MessageHandlerFunction handles ordered messages for a session queue.
// If the handler returns an error, the subscription will terminate with that error.
type MessageHandlerFunction func(ctx context.Context, msgID string, msg []byte) error

// SessionHost is the storage contract the Manager relies on. Implementations
// MUST be safe for concurrent use.
type SessionHost interface {
	// ClaimSlot makes sessionID the active session, creates its message queue
	// and returns the session it replaced ("" when the slot was empty). The
	// swap is atomic.
	ClaimSlot(ctx context.Context, sessionID string) (previous string, err error)
	// CurrentSlot returns the active session id or "" when the slot is empty.
	CurrentSlot(ctx context.Context) (string, error)
	// ReleaseSlot empties the slot only if it still holds sessionID.
	ReleaseSlot(ctx context.Context, sessionID string) (released bool, err error)

	// PublishSession appends data to the queue of sessionID. It returns
	// ErrSessionNotFound when the queue does not exist.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	// SubscribeSession delivers queued messages in order, starting with the
	// oldest one not yet delivered, and blocks until ctx ends, the handler
	// fails or the queue is cleaned up. A session has a single subscriber.
	SubscribeSession(ctx context.Context, sessionID string, handler MessageHandlerFunction) error
	// CleanupSession drops the queue of sessionID.
	CleanupSession(ctx context.Context, sessionID string) error
}
