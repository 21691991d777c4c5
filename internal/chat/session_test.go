package chat_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, opts chat.Options) *chat.Service {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return chat.NewService(opts)
}

// TestSessionNicknameNegotiation verifies re-prompting for taken and invalid
// nicknames before the session reaches the lobby.
func TestSessionNicknameNegotiation(t *testing.T) {
	svc := newService(t, chat.Options{MaxNicknameLength: 8})
	connect(t, svc, "alice")

	c := startSession(t, svc, "second")
	c.Type(t, "alice")
	c.Expect(t, chat.PromptNicknameTaken)
	c.Type(t, "/alice")
	c.Expect(t, chat.PromptNicknameInvalid)
	c.Type(t, "al ice")
	c.Expect(t, chat.PromptNicknameInvalid)
	c.Type(t, "waytoolongname")
	c.Expect(t, chat.PromptNicknameInvalid)
	c.Type(t, chat.InviteSentinel)
	c.Expect(t, chat.PromptNicknameInvalid)
	c.Type(t, "  bob  ")

	require.Eventually(t, func() bool {
		return c.session.State() == chat.StateLobby
	}, waitTimeout, time.Millisecond)
	assert.Equal(t, "bob", c.session.Nickname())
	assert.Equal(t, []string{"alice", "bob"}, svc.Users().Nicknames())
}

// TestSessionBlankNicknameGetsPlaceholder verifies that an empty nickname is
// replaced by a generated one.
func TestSessionBlankNicknameGetsPlaceholder(t *testing.T) {
	svc := newService(t, chat.Options{})

	c := startSession(t, svc, "anon")
	c.Type(t, "   ")

	require.Eventually(t, func() bool {
		return c.session.State() == chat.StateLobby
	}, waitTimeout, time.Millisecond)
	nickname := c.session.Nickname()
	assert.True(t, strings.HasPrefix(nickname, "Anonymous"), nickname)
	assert.Len(t, nickname, len("Anonymous")+8)
}

// TestSessionCreateAndList verifies that /create replies with the new id,
// joins the creator, and that the room shows up in /list for others.
func TestSessionCreateAndList(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	assert.Equal(t, chat.StateInRoom, a.session.State())
	require.NotNil(t, a.session.Room())
	assert.Equal(t, 1, a.session.Room().ID())

	b.Type(t, "/list")
	b.Expect(t, chat.ReplyRoomListHeader, "Room ID: 1")
}

// TestSessionRoomChat verifies broadcast to all members, including the
// sender, and that each chat line is written to the room's history.
func TestSessionRoomChat(t *testing.T) {
	history := newMemoryHistory()
	svc := newService(t, chat.Options{History: history})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")
	outsider := connect(t, svc, "C")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)

	a.Type(t, "hello")
	a.Expect(t, "A: hello")
	b.Expect(t, "A: hello")
	outsider.ExpectNothing(t, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(history.Lines(1)) == 1
	}, waitTimeout, time.Millisecond)
	assert.Equal(t, []string{"A: hello"}, history.Lines(1))
}

// TestSessionBlankLineNotRelayed verifies that whitespace-only lines in a
// room reach neither the members nor the history.
func TestSessionBlankLineNotRelayed(t *testing.T) {
	history := newMemoryHistory()
	svc := newService(t, chat.Options{History: history})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)

	a.Type(t, "")
	a.Type(t, "   ")
	a.Type(t, "after")
	b.Expect(t, "A: after")
	a.Expect(t, "A: after")

	require.Eventually(t, func() bool {
		return len(history.Lines(1)) == 1
	}, waitTimeout, time.Millisecond)
	assert.Equal(t, []string{"A: after"}, history.Lines(1))
}

// TestSessionHistoryFailureStillBroadcasts verifies that persistence errors
// are not fatal to the message.
func TestSessionHistoryFailureStillBroadcasts(t *testing.T) {
	history := newMemoryHistory()
	history.err = errors.New("disk full")
	svc := newService(t, chat.Options{History: history})
	a := connect(t, svc, "A")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	a.Type(t, "still here")
	a.Expect(t, "A: still here")
	assert.Equal(t, chat.StateInRoom, a.session.State())
}

// TestSessionRoomDeletedAfterLastExit verifies the leave flow and that the
// empty room disappears from the registry.
func TestSessionRoomDeletedAfterLastExit(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")
	c := connect(t, svc, "C")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)

	b.Type(t, "/exit")
	b.Expect(t, chat.ReplyMovedToLobby)
	assert.Equal(t, chat.StateLobby, b.session.State())

	a.Type(t, "/exit")
	a.Expect(t, chat.ReplyMovedToLobby)
	assert.Zero(t, svc.Rooms().Len())

	c.Type(t, "/join 1")
	c.Expect(t, chat.ReplyRoomNotFound)

	a.Type(t, "/exit")
	a.Expect(t, chat.ReplyNotInRoom)
}

// TestSessionJoinErrors covers the join error replies.
func TestSessionJoinErrors(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")

	a.Type(t, "/join")
	a.Expect(t, chat.ReplyRoomIDMissing)
	a.Type(t, "/join abc")
	a.Expect(t, chat.ReplyRoomIDInvalid)
	a.Type(t, "/join 99")
	a.Expect(t, chat.ReplyRoomNotFound)
	assert.Equal(t, chat.StateLobby, a.session.State())
}

// TestSessionSwitchRooms verifies that joining another room leaves the
// previous one, deleting it when it empties.
func TestSessionSwitchRooms(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/create")
	b.Expect(t, "Room 2 created.", chat.ReplyJoined)

	a.Type(t, "/join 2")
	a.Expect(t, chat.ReplyJoined)
	assert.Equal(t, []int{2}, svc.Rooms().IDs())

	a.Type(t, "/roomusers")
	a.Expect(t, chat.ReplyRoomUsersHeader, "A", "B")

	a.Type(t, "/join 2")
	a.Expect(t, chat.ReplyJoined)
	room, err := svc.Rooms().Get(2)
	require.NoError(t, err)
	assert.Equal(t, 2, room.Len())
}

// TestSessionLobbyChat verifies that plain lines in the lobby are answered
// with a reply instead of being delivered anywhere.
func TestSessionLobbyChat(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")

	a.Type(t, "anyone there?")
	a.Expect(t, chat.ReplyNotInRoom)
	a.Type(t, "/roomusers")
	a.Expect(t, chat.ReplyNotInRoom)
	a.Type(t, "")
	a.ExpectNothing(t, 50*time.Millisecond)
}

// TestSessionUsers verifies the global user listing.
func TestSessionUsers(t *testing.T) {
	svc := newService(t, chat.Options{})
	b := connect(t, svc, "bob")
	connect(t, svc, "alice")

	b.Type(t, "/users")
	b.Expect(t, chat.ReplyUsersHeader, "alice", "bob")
}

// TestSessionWhisper verifies delivery only to the named recipient.
func TestSessionWhisper(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")
	c := connect(t, svc, "C")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	c.Type(t, "/join 1")
	c.Expect(t, chat.ReplyJoined)

	a.Type(t, "/whisper B psst  secret")
	b.Expect(t, "[Whisper from A]: psst  secret")
	c.ExpectNothing(t, 50*time.Millisecond)
	a.ExpectNothing(t, 10*time.Millisecond)

	a.Type(t, "/whisper nobody hi")
	a.Expect(t, "User nobody not found or not online.")
	a.Type(t, "/whisper B")
	a.Expect(t, chat.ReplyWhisperUsage)
}

// TestSessionInvite verifies the invite notice, the sentinel, and that the
// invitee's follow-up /join lands in the inviter's room, with or without an
// explicit id.
func TestSessionInvite(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")
	c := connect(t, svc, "C")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)

	a.Type(t, "/invite B")
	b.Expect(t, "You have been invited to join room 1 by A.", chat.InviteSentinel)
	a.Expect(t, "Invitation sent to B.")
	assert.Equal(t, chat.StateLobby, b.session.State(), "invite alone must not move the invitee")

	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)
	assert.Equal(t, []string{"A", "B"}, b.session.Room().Members())

	a.Type(t, "/invite C")
	c.Expect(t, "You have been invited to join room 1 by A.", chat.InviteSentinel)
	a.Expect(t, "Invitation sent to C.")
	c.Type(t, "/join")
	c.Expect(t, chat.ReplyJoined)
	assert.Equal(t, 1, c.session.Room().ID())

	c.Type(t, "/exit")
	c.Expect(t, chat.ReplyMovedToLobby)
	c.Type(t, "/join")
	c.Expect(t, chat.ReplyRoomIDMissing)
}

// TestSessionInviteErrors covers the invite error replies.
func TestSessionInviteErrors(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")

	a.Type(t, "/invite B")
	a.Expect(t, chat.ReplyNotInRoom)
	b.ExpectNothing(t, 50*time.Millisecond)

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	a.Type(t, "/invite")
	a.Expect(t, chat.ReplyInviteUsage)
	a.Type(t, "/invite ghost")
	a.Expect(t, "User ghost not found or not online.")
}

// TestSessionQuitCleansUp verifies that /bye releases the nickname and the
// room, deleting the room when the quitter was its last member.
func TestSessionQuitCleansUp(t *testing.T) {
	events := &eventLog{}
	svc := newService(t, chat.Options{Events: events})
	a := connect(t, svc, "A")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	a.Type(t, "/bye")

	require.NoError(t, a.Wait(t))
	assert.Equal(t, chat.StateDisconnected, a.session.State())
	assert.Zero(t, svc.Users().Len())
	assert.Zero(t, svc.Rooms().Len())
	assert.Equal(t, []string{"connected:A", "created:1", "disconnected:A", "deleted:1"}, events.Events())

	b := connect(t, svc, "A")
	assert.Equal(t, "A", b.session.Nickname(), "nickname is free again after disconnect")
}

// TestSessionHangupCleansUp verifies cleanup on end-of-stream, and that a
// later explicit Close is a no-op.
func TestSessionHangupCleansUp(t *testing.T) {
	events := &eventLog{}
	svc := newService(t, chat.Options{Events: events})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)

	a.Hangup()
	require.NoError(t, a.Wait(t))
	a.session.Close()

	assert.Equal(t, []string{"B"}, svc.Users().Nicknames())
	room, err := svc.Rooms().Get(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, room.Members())

	disconnects := 0
	for _, ev := range events.Events() {
		if ev == "disconnected:A" {
			disconnects++
		}
	}
	assert.Equal(t, 1, disconnects)
}

// TestSessionHangupDuringNegotiation verifies nothing is registered when
// the client leaves before choosing a nickname.
func TestSessionHangupDuringNegotiation(t *testing.T) {
	svc := newService(t, chat.Options{})
	c := startSession(t, svc, "early")

	c.Hangup()
	require.NoError(t, c.Wait(t))
	assert.Zero(t, svc.Users().Len())
	assert.Equal(t, chat.StateDisconnected, c.session.State())
}

// TestSessionRateLimit verifies chat lines beyond the burst are dropped with
// a reply.
func TestSessionRateLimit(t *testing.T) {
	now := time.Unix(0, 0)
	svc := newService(t, chat.Options{
		RateLimit: chat.RateLimit{Burst: 2, RefillInterval: time.Minute},
		Now:       func() time.Time { return now },
	})
	a := connect(t, svc, "A")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	a.Type(t, "one")
	a.Expect(t, "A: one")
	a.Type(t, "two")
	a.Expect(t, "A: two")
	a.Type(t, "three")
	a.Expect(t, chat.ReplyRateLimited)
}

// TestSessionConcurrentClients runs many clients through create, chat and
// quit at once and checks that the registries end up empty.
func TestSessionConcurrentClients(t *testing.T) {
	svc := newService(t, chat.Options{})

	const clients = 16
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		c := connect(t, svc, fmt.Sprintf("user%02d", i))
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			for _, line := range []string{"/create", "hi", "/bye"} {
				c.in <- line
			}
			select {
			case err := <-c.done:
				if err != nil {
					t.Errorf("%s: session error: %v", c.addr, err)
				}
			case <-time.After(waitTimeout):
				t.Errorf("%s: session did not stop", c.addr)
			}
		}(c)
	}
	wg.Wait()

	assert.Zero(t, svc.Users().Len())
	assert.Zero(t, svc.Rooms().Len())
}

// TestServiceStats verifies the registry summary.
func TestServiceStats(t *testing.T) {
	svc := newService(t, chat.Options{})
	a := connect(t, svc, "A")
	b := connect(t, svc, "B")
	connect(t, svc, "C")

	a.Type(t, "/create")
	a.Expect(t, "Room 1 created.", chat.ReplyJoined)
	b.Type(t, "/join 1")
	b.Expect(t, chat.ReplyJoined)

	stats := svc.Stats()
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, map[int]int{1: 2}, stats.RoomMembers)
}
