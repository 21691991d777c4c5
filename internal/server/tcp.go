// Package server frames raw TCP connections as newline-terminated lines with
// a dedicated write pump per connection.
package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

const writeWait = 10 * time.Second

// tcpConn frames a raw TCP stream as newline-terminated lines.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	out     *outbox
	addr    string
	maxSize int64
	logger  *slog.Logger
}

func newTCPConn(conn net.Conn, cfg *Config, logger *slog.Logger) *tcpConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), int(cfg.MaxMessageSize))

	addr := conn.RemoteAddr().String()
	return &tcpConn{
		conn:    conn,
		scanner: scanner,
		out:     newOutbox(cfg.SendBuffer),
		addr:    addr,
		maxSize: cfg.MaxMessageSize,
		logger:  logger.With("transport", "tcp", "remote_addr", addr),
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}

	err := c.scanner.Err()
	if err == nil {
		return "", io.EOF
	}
	if errors.Is(err, bufio.ErrTooLong) {
		c.logger.Warn("line exceeded maximum size", "max_bytes", c.maxSize)
	}
	return "", err
}

func (c *tcpConn) Send(line string) error {
	err := c.out.push(line)
	if errors.Is(err, ErrSendBufferFull) {
		c.logger.Warn("send buffer full, dropping connection")
		c.abort()
	}
	return err
}

func (c *tcpConn) Close() error {
	c.out.close()
	return nil
}

func (c *tcpConn) RemoteAddr() string {
	return c.addr
}

// abort closes the socket immediately, discarding queued lines.
func (c *tcpConn) abort() {
	c.out.close()
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("error closing connection", "error", err)
	}
}

// writePump writes queued lines until the outbox is closed, flushing whenever
// the queue runs dry, then closes the socket.
func (c *tcpConn) writePump() {
	w := bufio.NewWriter(c.conn)
	defer func() {
		if err := w.Flush(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error flushing final lines", "error", err)
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection", "error", err)
		}
	}()

	for line := range c.out.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Warn("error setting write deadline", "error", err)
			return
		}
		if _, err := w.WriteString(line); err != nil {
			c.logWriteError(err)
			return
		}
		if err := w.WriteByte('\n'); err != nil {
			c.logWriteError(err)
			return
		}
		if len(c.out.send) == 0 {
			if err := w.Flush(); err != nil {
				c.logWriteError(err)
				return
			}
		}
	}
}

func (c *tcpConn) logWriteError(err error) {
	if isExpectedCloseError(err) {
		return
	}
	c.logger.Warn("error writing line", "error", err)
}
