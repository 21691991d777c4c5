// Package server implements the bounded per-connection send queue drained by
// each transport's write pump.
package server

import (
	"errors"
	"sync"
)

var (
	// ErrConnClosed is returned by Send after the connection is closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not draining its
	// queue; the connection is closed.
	ErrSendBufferFull = errors.New("send buffer full")
)

// outbox is a connection's bounded outbound queue. Senders never block; a
// single writePump goroutine drains it.
type outbox struct {
	mu     sync.Mutex
	send   chan string
	closed bool
}

func newOutbox(size int) *outbox {
	return &outbox{send: make(chan string, size)}
}

// push enqueues line. It reports ErrSendBufferFull without closing; the
// caller decides how to drop the peer.
func (o *outbox) push(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrConnClosed
	}

	select {
	case o.send <- line:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close stops accepting lines. Lines already queued are still delivered by
// the writer. It reports whether this call did the closing.
func (o *outbox) close() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	o.closed = true
	close(o.send)
	return true
}
