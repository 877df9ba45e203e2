package sessions

import "errors"

var (
	// ErrNoActiveSession is returned when a message is posted while the slot
	// is empty.
	ErrNoActiveSession = errors.New("no active SSE session")
	// ErrSessionNotFound is returned when a message names a session that is
	// not the active one, or when a host has no queue for the session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)
