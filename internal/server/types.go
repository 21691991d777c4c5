// Package server defines the transport interface and utility helpers shared
// by the TCP and WebSocket connections.
package server

import (
	"errors"
	"net"
	"strings"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// transport is a chat.Conn with an outbound writer goroutine.
type transport interface {
	chat.Conn

	// writePump drains the outbound queue until it is closed, then closes
	// the underlying socket.
	writePump()
	// abort closes the socket without flushing.
	abort()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
