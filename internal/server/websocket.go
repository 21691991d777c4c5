// Package server adapts WebSocket connections to the line protocol, handling
// read/write pumps, keepalive pings, and lifecycle control.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn carries chat lines over a WebSocket. Each text frame holds one or
// more newline-separated lines; each outbound line is its own frame.
type wsConn struct {
	conn    *websocket.Conn
	out     *outbox
	addr    string
	maxSize int64
	logger  *slog.Logger

	// pending holds lines from a multi-line frame not yet returned.
	pending []string
}

func newWSConn(conn *websocket.Conn, addr string, cfg *Config, logger *slog.Logger) *wsConn {
	conn.SetReadLimit(cfg.MaxMessageSize)

	c := &wsConn{
		conn:    conn,
		out:     newOutbox(cfg.SendBuffer),
		addr:    addr,
		maxSize: cfg.MaxMessageSize,
		logger:  logger.With("transport", "websocket", "remote_addr", addr),
	}
	c.setupReadConnection()
	return c
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.handleReadError(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.pending = splitLines(string(data))
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

// splitLines splits a frame into lines, dropping one trailing newline and any
// \r before each newline.
func splitLines(frame string) []string {
	frame = strings.TrimSuffix(frame, "\n")
	lines := strings.Split(frame, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// handleReadError logs the read failure and maps orderly closes to io.EOF.
func (c *wsConn) handleReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("message exceeded maximum size", "max_bytes", c.maxSize)
		return err
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.logger.Debug("client closed websocket", "error", err)
		return io.EOF
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Debug("websocket connection closed", "error", err)
		return io.EOF
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("unexpected websocket close", "error", err)
		return err
	}

	c.logger.Warn("websocket read error", "error", err)
	return err
}

func (c *wsConn) Send(line string) error {
	err := c.out.push(line)
	if errors.Is(err, ErrSendBufferFull) {
		c.logger.Warn("send buffer full, dropping connection")
		c.abort()
	}
	return err
}

func (c *wsConn) Close() error {
	c.out.close()
	return nil
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) abort() {
	c.out.close()
	c.closeConnection()
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *wsConn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case line, ok := <-c.out.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeTextMessage(line)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *wsConn) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("error closing websocket", "error", err)
	}
}

func (c *wsConn) writeCloseMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("error writing close message", "error", err)
	}
	return false
}

func (c *wsConn) writeTextMessage(line string) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *wsConn) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing ping", "error", err)
		}
		return false
	}
	return true
}
