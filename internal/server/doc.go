// Package server exposes the chat service to the network.
//
// The implementation is organized into specialized files for configuration,
// logging, the TCP and WebSocket transports, the session hub, routing and
// HTTP handlers. Both transports share one outbound queue type drained by a
// single writer goroutine per connection, so room broadcasts never block on a
// slow socket.
package server
