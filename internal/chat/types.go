// Package chat holds the server-side session and room core: the registries
// that track connected clients and rooms, the room lifecycle, and the
// per-client command loop that routes broadcasts, whispers and invites.
package chat

import (
	"context"
	"fmt"
)

// InviteSentinel is the protocol line that tells the receiving peer to answer
// with a /join for the room named in the preceding invite notice.
const InviteSentinel = "invited"

// Sink delivers one line of text to a connected client. Implementations must
// preserve the order of lines handed to a single Sink.
type Sink interface {
	Send(line string) error
}

// Conn is a line-oriented, bidirectional client connection supplied by the
// transport layer.
type Conn interface {
	Sink
	ReadLine() (string, error)
	Close() error
	RemoteAddr() string
}

// Member is the identity a Room tracks for each of its members.
type Member interface {
	Sink
	Nickname() string
}

// History persists room chat lines. It is keyed by room id and never read
// back by the core.
type History interface {
	Append(ctx context.Context, roomID int, line string) error
}

// Events receives lifecycle notifications from the core. Implementations
// must not block for long; they are called from session goroutines.
type Events interface {
	UserConnected(nickname string)
	UserDisconnected(nickname string)
	RoomCreated(roomID int)
	RoomDeleted(roomID int)
	MessageSent(roomID int, nickname, text string)
}

// NopHistory discards every line.
type NopHistory struct{}

func (NopHistory) Append(context.Context, int, string) error { return nil }

// NopEvents ignores every notification.
type NopEvents struct{}

func (NopEvents) UserConnected(string)            {}
func (NopEvents) UserDisconnected(string)         {}
func (NopEvents) RoomCreated(int)                 {}
func (NopEvents) RoomDeleted(int)                 {}
func (NopEvents) MessageSent(int, string, string) {}

// State is the position of a Session in its lifecycle.
type State int

const (
	StateNegotiating State = iota
	StateLobby
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateLobby:
		return "lobby"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
