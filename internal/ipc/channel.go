package ipc

import (
	"errors"
	"time"
)

// ErrEmbeddedNewline is returned by Send for payloads that cannot be
// framed: messages are newline-delimited and carry no escaping.
var ErrEmbeddedNewline = errors.New("message contains embedded newline")

// MessageChannel is a duplex, ordered, newline-framed text channel to an
// independently-lifecycled peer. Implementations deliver inbound messages
// both to an internal queue (drained by Receive) and to a single registered
// callback.
type MessageChannel interface {
	// Start launches the background reader. Calling Start on a started
	// channel is a no-op.
	Start() error

	// Send frames and writes one message. On a write failure the
	// underlying handle is invalidated and the error returned; there is
	// no internal retry.
	Send(msg string) error

	// Receive blocks up to timeout for the next queued message. It
	// returns ok=false on timeout, which is not an error.
	Receive(timeout time.Duration) (msg string, ok bool)

	// SetCallback registers the message callback, replacing any previous
	// one. At most one callback is active.
	SetCallback(fn func(msg string))

	// Stop signals the reader to exit and joins it. After Stop returns
	// no callback is invoked. Stop is idempotent.
	Stop()
}
