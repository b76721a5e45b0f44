package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw encoded payload.
type Frame []byte

// SessionID identifies one live transport connection (a peer).
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks. It fails with ErrBackpressure or ErrConnClosed.
	TrySend(Frame) error
	Close()
}
