//go:generate go run go.uber.org/mock/mockgen -source=signal_iface.go -destination=../mocks/mock_signal.go -package=mocks
package core

import "github.com/google/uuid"

// Frame is a raw encoded message (one websocket text frame).
type Frame []byte

// ConnID identifies one attach of an endpoint. A reconnect gets a new ConnID.
type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// TrySend enqueues without blocking; it fails when the queue is full or
	// the connection is closed.
	TrySend(Frame) error
	Close()
}
