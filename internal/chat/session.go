package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Reply lines sent back to the originating client.
const (
	PromptNickname        = "Please enter your nickname: "
	PromptNicknameTaken   = "Nickname already in use. Please enter a different nickname: "
	PromptNicknameInvalid = "Invalid nickname. Please enter a different nickname: "

	ReplyRoomCreated     = "Room %d created."
	ReplyRoomListHeader  = "Current chat rooms:"
	ReplyRoomListEntry   = "Room ID: %d"
	ReplyJoined          = "Joined the room."
	ReplyRoomNotFound    = "Room ID does not exist."
	ReplyRoomIDMissing   = "Please enter the room ID."
	ReplyRoomIDInvalid   = "Invalid room ID."
	ReplyMovedToLobby    = "Moved to the lobby."
	ReplyNotInRoom       = "Not currently in a room."
	ReplyUsersHeader     = "Current users:"
	ReplyRoomUsersHeader = "Users in the current room:"
	ReplyUserNotFound    = "User %s not found or not online."
	ReplyWhisperUsage    = "Invalid whisper command. Usage: /whisper [recipient] [message]"
	ReplyInviteUsage     = "Invalid invite command. Usage: /invite [nickname]"
	ReplyInviteSent      = "Invitation sent to %s."
	ReplyRateLimited     = "Rate limit exceeded; message dropped."

	WhisperFormat = "[Whisper from %s]: %s"
	InviteFormat  = "You have been invited to join room %d by %s."
	ChatFormat    = "%s: %s"
)

// Session is the server side of one connected client. It negotiates a
// nickname, then reads and dispatches lines until the client quits or the
// connection fails.
type Session struct {
	svc     *Service
	conn    Conn
	logger  *slog.Logger
	limiter *rateLimiter

	mu            sync.Mutex
	nickname      string
	room          *Room
	pendingInvite int
	state         State

	cleanupOnce sync.Once
}

// Nickname returns the negotiated nickname, or "" while negotiating.
func (s *Session) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the room the session is in, or nil in the lobby.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Send delivers a line to this session's client.
func (s *Session) Send(line string) error {
	return s.conn.Send(line)
}

// Run drives the session until the client sends /bye, the connection fails
// or ctx is cancelled. Cleanup always runs before Run returns. A clean
// end-of-stream is not reported as an error.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	if err := s.negotiate(ctx); err != nil {
		return ignoreEOF(err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			return ignoreEOF(err)
		}

		if !s.handle(ctx, line) {
			return nil
		}
	}
}

// Close moves the session to Disconnected: it releases the nickname, leaves
// the current room and closes the connection. Only the first call has any
// effect.
func (s *Session) Close() {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		nickname := s.nickname
		room := s.room
		s.room = nil
		s.state = StateDisconnected
		s.mu.Unlock()

		if nickname != "" {
			s.svc.users.Unregister(nickname)
			s.svc.events.UserDisconnected(nickname)
			s.log().Info("client disconnected", "nickname", nickname)
		}
		if room != nil {
			room.RemoveMember(s)
		}
		if err := s.conn.Close(); err != nil {
			s.log().Debug("closing connection", "error", err)
		}
	})
}

func (s *Session) negotiate(ctx context.Context) error {
	s.reply(PromptNickname)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			return err
		}

		nickname, err := s.svc.claimNickname(line, s)
		switch {
		case err == nil:
			s.mu.Lock()
			s.nickname = nickname
			s.state = StateLobby
			s.logger = s.logger.With("nickname", nickname)
			s.mu.Unlock()

			s.log().Info("client connected")
			s.svc.events.UserConnected(nickname)
			return nil
		case errors.Is(err, ErrNicknameTaken):
			s.reply(PromptNicknameTaken)
		case errors.Is(err, ErrNicknameInvalid):
			s.log().Debug("rejected nickname", "error", err)
			s.reply(PromptNicknameInvalid)
		default:
			return err
		}
	}
}

// handle dispatches one line and reports whether the session continues.
func (s *Session) handle(ctx context.Context, line string) bool {
	cmd := Dispatch(s.State(), line)
	s.log().Debug("dispatching", "command", cmd.Kind.String(), "action", cmd.Action.String())

	switch cmd.Action {
	case ActionDisconnect:
		return false
	case ActionBroadcast:
		s.chat(ctx, cmd)
		return true
	}

	switch cmd.Kind {
	case CommandList:
		s.listRooms()
	case CommandCreate:
		s.createRoom()
	case CommandJoin:
		s.joinRoom(cmd)
	case CommandLeave:
		s.leaveRoom()
	case CommandUsers:
		s.listUsers()
	case CommandRoomUsers:
		s.listRoomUsers()
	case CommandWhisper:
		s.whisper(cmd)
	case CommandInvite:
		s.invite(cmd)
	case CommandChat:
		s.chat(ctx, cmd)
	}
	return true
}

func (s *Session) listRooms() {
	ids := s.svc.rooms.IDs()
	lines := make([]string, 0, len(ids)+1)
	lines = append(lines, ReplyRoomListHeader)
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf(ReplyRoomListEntry, id))
	}
	s.reply(lines...)
}

func (s *Session) createRoom() {
	room := s.svc.rooms.Create()
	s.reply(fmt.Sprintf(ReplyRoomCreated, room.ID()))
	s.replyJoin(s.join(room.ID()))
}

func (s *Session) joinRoom(cmd Command) {
	var id int
	if arg := cmd.Arg(0); arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil {
			s.log().Debug("malformed join", "error", newMalformedCommandError(cmd.Kind, "room id is not a number"))
			s.reply(ReplyRoomIDInvalid)
			return
		}
		id = parsed
	} else {
		invited, ok := s.takePendingInvite()
		if !ok {
			s.reply(ReplyRoomIDMissing)
			return
		}
		id = invited
	}

	s.replyJoin(s.join(id))
}

func (s *Session) replyJoin(err error) {
	switch {
	case err == nil:
		s.reply(ReplyJoined)
	case errors.Is(err, ErrRoomNotFound):
		s.reply(ReplyRoomNotFound)
	default:
		s.log().Error("join failed", "error", err)
	}
}

// join moves the session into the room with the given id. The session is
// added to the new room before it leaves the old one, so a failed join
// leaves it where it was.
func (s *Session) join(id int) error {
	room, err := s.svc.rooms.Get(id)
	if err != nil {
		return err
	}

	current := s.Room()
	if current == room {
		return nil
	}

	if err := room.AddMember(s); err != nil {
		return err
	}
	if !s.setRoom(room) {
		room.RemoveMember(s)
		return ErrSessionClosed
	}

	if current != nil {
		current.RemoveMember(s)
	}
	s.log().Info("joined room", "room_id", id)
	return nil
}

func (s *Session) leaveRoom() {
	room := s.Room()
	if room == nil {
		s.reply(ReplyNotInRoom)
		return
	}

	s.setRoom(nil)
	room.RemoveMember(s)
	s.log().Info("left room", "room_id", room.ID())
	s.reply(ReplyMovedToLobby)
}

func (s *Session) listUsers() {
	names := s.svc.users.Nicknames()
	s.reply(append([]string{ReplyUsersHeader}, names...)...)
}

func (s *Session) listRoomUsers() {
	room := s.Room()
	if room == nil {
		s.reply(ReplyNotInRoom)
		return
	}
	s.reply(append([]string{ReplyRoomUsersHeader}, room.Members()...)...)
}

func (s *Session) whisper(cmd Command) {
	recipient := cmd.Arg(0)
	if recipient == "" || strings.TrimSpace(cmd.Text) == "" {
		s.reply(ReplyWhisperUsage)
		return
	}

	sink, err := s.svc.users.Lookup(recipient)
	if err != nil {
		s.reply(fmt.Sprintf(ReplyUserNotFound, recipient))
		return
	}

	if err := sink.Send(fmt.Sprintf(WhisperFormat, s.Nickname(), cmd.Text)); err != nil {
		s.log().Warn("whisper delivery failed", "recipient", recipient, "error", err)
	}
}

func (s *Session) invite(cmd Command) {
	invitee := cmd.Arg(0)
	if invitee == "" {
		s.reply(ReplyInviteUsage)
		return
	}

	room := s.Room()
	if room == nil {
		s.reply(ReplyNotInRoom)
		return
	}

	sink, err := s.svc.users.Lookup(invitee)
	if err != nil {
		s.reply(fmt.Sprintf(ReplyUserNotFound, invitee))
		return
	}

	// Record before the sentinel goes out so the peer's /join finds it.
	if other, ok := sink.(*Session); ok {
		other.setPendingInvite(room.ID())
	}

	notice := fmt.Sprintf(InviteFormat, room.ID(), s.Nickname())
	for _, line := range []string{notice, InviteSentinel} {
		if err := sink.Send(line); err != nil {
			s.log().Warn("invite delivery failed", "invitee", invitee, "error", err)
			return
		}
	}
	s.reply(fmt.Sprintf(ReplyInviteSent, invitee))
}

func (s *Session) chat(ctx context.Context, cmd Command) {
	if strings.TrimSpace(cmd.Text) == "" {
		return
	}

	room := s.Room()
	if room == nil {
		s.reply(ReplyNotInRoom)
		return
	}

	if !s.limiter.allow() {
		s.log().Warn("chat line dropped", "room_id", room.ID(), "error", ErrRateLimited)
		s.reply(ReplyRateLimited)
		return
	}

	nickname := s.Nickname()
	line := fmt.Sprintf(ChatFormat, nickname, cmd.Text)
	room.Broadcast(line)

	if err := s.svc.history.Append(ctx, room.ID(), line); err != nil {
		s.log().Warn("saving chat history", "room_id", room.ID(), "error", err)
	}
	s.svc.events.MessageSent(room.ID(), nickname, cmd.Text)
}

// setRoom records the current room. It refuses once the session has
// disconnected, since cleanup has already run.
func (s *Session) setRoom(room *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return false
	}
	s.room = room
	if room != nil {
		s.state = StateInRoom
	} else {
		s.state = StateLobby
	}
	return true
}

func (s *Session) log() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

func (s *Session) setPendingInvite(roomID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingInvite = roomID
}

func (s *Session) takePendingInvite() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.pendingInvite
	s.pendingInvite = 0
	return id, id != 0
}

// reply sends lines back to this session's client, logging failures. The
// read loop notices a dead connection on its next read.
func (s *Session) reply(lines ...string) {
	for _, line := range lines {
		if err := s.conn.Send(line); err != nil {
			s.log().Debug("reply failed", "error", err)
			return
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
