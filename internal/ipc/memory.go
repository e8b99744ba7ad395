package ipc

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrPeerStopped is returned by MemoryChannel.Send when the other endpoint
// has been stopped.
var ErrPeerStopped = errors.New("peer channel stopped")

// MemoryChannel is an in-process MessageChannel. Channels are created in
// cross-connected pairs: what one endpoint sends the other receives, in
// send order. It stands in for PipeChannel in tests.
type MemoryChannel struct {
	queue chan string

	cbMu     sync.Mutex
	callback func(string)

	mu      sync.Mutex
	peer    *MemoryChannel
	stopped bool
}

// NewMemoryPair returns two connected endpoints.
func NewMemoryPair() (*MemoryChannel, *MemoryChannel) {
	a := &MemoryChannel{queue: make(chan string, queueCapacity)}
	b := &MemoryChannel{queue: make(chan string, queueCapacity)}
	a.peer = b
	b.peer = a
	return a, b
}

func (c *MemoryChannel) Start() error { return nil }

func (c *MemoryChannel) Send(msg string) error {
	if strings.ContainsRune(msg, '\n') {
		return ErrEmbeddedNewline
	}
	return c.peer.accept(msg)
}

func (c *MemoryChannel) Receive(timeout time.Duration) (string, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-c.queue:
		return msg, true
	case <-t.C:
		return "", false
	}
}

func (c *MemoryChannel) SetCallback(fn func(msg string)) {
	c.cbMu.Lock()
	c.callback = fn
	c.cbMu.Unlock()
}

func (c *MemoryChannel) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// accept delivers a message from the peer. Delivery is synchronous on the
// sender's goroutine, so ordering follows send order trivially.
func (c *MemoryChannel) accept(msg string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrPeerStopped
	}
	c.mu.Unlock()

	select {
	case c.queue <- msg:
	default:
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- msg:
		default:
		}
	}

	c.cbMu.Lock()
	cb := c.callback
	c.cbMu.Unlock()
	if cb != nil {
		cb(msg)
	}
	return nil
}
