// Package client is a line-oriented terminal client for the chat server. It
// copies input lines to the server, prints server lines and accepts room
// invitations automatically.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// AcceptingInvite is printed when the client answers an invitation.
const AcceptingInvite = "Accepting invitation..."

var inviteNotice = regexp.MustCompile(`^You have been invited to join room (\d+) by .+\.$`)

// Client relays lines between a terminal and one server connection.
type Client struct {
	conn   io.ReadWriteCloser
	out    io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	// invitedRoom is the room named by the last invite notice, or 0.
	invitedRoom int
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, out io.Writer, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return New(conn, out, logger), nil
}

// New wraps an established connection. Server lines are written to out.
func New(conn io.ReadWriteCloser, out io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		out:    out,
		logger: logger,
	}
}

// Run sends each line of in to the server until in ends, the user types
// /bye, the server closes the connection or ctx is cancelled. The
// connection is closed before Run returns.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	received := make(chan error, 1)
	go func() {
		received <- c.receive()
	}()

	sent := make(chan error, 1)
	go func() {
		sent <- c.forward(in)
	}()

	var err error
	select {
	case err = <-received:
	case err = <-sent:
		switch {
		case err == nil:
			// The server closes the connection after /bye.
			err = <-received
		case errors.Is(err, io.EOF):
			err = nil
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		c.logger.Debug("closing connection", "error", cerr)
	}
	return err
}

// forward copies input lines to the server. It returns nil after sending
// /bye and io.EOF if the input ends first.
func (c *Client) forward(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if err := c.send(line); err != nil {
			return err
		}
		if line == chat.TokenQuit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return io.EOF
}

// receive prints server lines until the connection closes. A clean close
// returns nil.
func (c *Client) receive() error {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		if err := c.handleServerLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

func (c *Client) handleServerLine(line string) error {
	if line != chat.InviteSentinel {
		if m := inviteNotice.FindStringSubmatch(line); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil {
				c.invitedRoom = id
			}
		}
		_, err := fmt.Fprintln(c.out, line)
		return err
	}

	if _, err := fmt.Fprintln(c.out, AcceptingInvite); err != nil {
		return err
	}
	join := chat.TokenJoin
	if c.invitedRoom > 0 {
		join += " " + strconv.Itoa(c.invitedRoom)
		c.invitedRoom = 0
	}
	c.logger.Debug("accepting invitation", "command", join)
	return c.send(join)
}

func (c *Client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := io.WriteString(c.conn, strings.TrimRight(line, "\r\n")+"\n"); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
