package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

var errSendFailed = errors.New("send failed")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Member that keeps every line it is sent.
type recorder struct {
	name string
	fail bool

	mu    sync.Mutex
	lines []string
}

func newRecorder(name string) *recorder {
	return &recorder{name: name}
}

func (r *recorder) Nickname() string { return r.name }

func (r *recorder) Send(line string) error {
	if r.fail {
		return errSendFailed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// fakeConn is a scripted chat.Conn. Lines written with Type are returned by
// ReadLine; lines the server sends are queued for Next.
type fakeConn struct {
	addr string
	in   chan string
	out  chan string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   addr,
		in:     make(chan string, 64),
		out:    make(chan string, 1024),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) Send(line string) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- line:
		return nil
	default:
		return errSendFailed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Type(t *testing.T, line string) {
	t.Helper()
	select {
	case c.in <- line:
	case <-time.After(waitTimeout):
		t.Fatalf("%s: timed out typing %q", c.addr, line)
	}
}

func (c *fakeConn) Hangup() {
	close(c.in)
}

func (c *fakeConn) Next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-c.out:
		return line
	case <-time.After(waitTimeout):
		t.Fatalf("%s: timed out waiting for a line", c.addr)
		return ""
	}
}

func (c *fakeConn) Expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		require.Equal(t, w, c.Next(t), "%s: unexpected line", c.addr)
	}
}

func (c *fakeConn) ExpectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case line := <-c.out:
		t.Fatalf("%s: unexpected line %q", c.addr, line)
	case <-time.After(d):
	}
}

// client is a running session plus its scripted connection.
type client struct {
	*fakeConn
	session *chat.Session
	done    chan error
}

func startSession(t *testing.T, svc *chat.Service, addr string) *client {
	t.Helper()
	conn := newFakeConn(addr)
	c := &client{
		fakeConn: conn,
		session:  svc.NewSession(conn),
		done:     make(chan error, 1),
	}
	go func() { c.done <- c.session.Run(context.Background()) }()
	c.Expect(t, chat.PromptNickname)
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// connect starts a session and negotiates nickname.
func connect(t *testing.T, svc *chat.Service, nickname string) *client {
	t.Helper()
	c := startSession(t, svc, nickname+"-addr")
	c.Type(t, nickname)
	require.Eventually(t, func() bool {
		return c.session.State() == chat.StateLobby
	}, waitTimeout, time.Millisecond)
	return c
}

func (c *client) Wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-c.done:
		return err
	case <-time.After(waitTimeout):
		t.Fatalf("%s: session did not stop", c.addr)
		return nil
	}
}

// memoryHistory records appended lines per room.
type memoryHistory struct {
	mu    sync.Mutex
	lines map[int][]string
	err   error
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{lines: make(map[int][]string)}
}

func (h *memoryHistory) Append(_ context.Context, roomID int, line string) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines[roomID] = append(h.lines[roomID], line)
	return nil
}

func (h *memoryHistory) Lines(roomID int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines[roomID]...)
}

// eventLog records lifecycle notifications as strings.
type eventLog struct {
	chat.NopEvents

	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) RoomCreated(id int)        { e.add("created:" + strconv.Itoa(id)) }
func (e *eventLog) RoomDeleted(id int)        { e.add("deleted:" + strconv.Itoa(id)) }
func (e *eventLog) UserConnected(n string)    { e.add("connected:" + n) }
func (e *eventLog) UserDisconnected(n string) { e.add("disconnected:" + n) }

func (e *eventLog) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}
