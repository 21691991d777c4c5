package chat

import (
	"fmt"
	"strings"
	"unicode"
)

// Command tokens recognized on an input line. Matching is case-sensitive and
// applies to the first whitespace-separated field only.
const (
	TokenQuit      = "/bye"
	TokenList      = "/list"
	TokenCreate    = "/create"
	TokenJoin      = "/join"
	TokenLeave     = "/exit"
	TokenUsers     = "/users"
	TokenRoomUsers = "/roomusers"
	TokenWhisper   = "/whisper"
	TokenInvite    = "/invite"
)

// CommandKind tags a classified input line.
type CommandKind int

const (
	CommandChat CommandKind = iota
	CommandQuit
	CommandList
	CommandCreate
	CommandJoin
	CommandLeave
	CommandUsers
	CommandRoomUsers
	CommandWhisper
	CommandInvite
)

var commandTokens = map[string]CommandKind{
	TokenQuit:      CommandQuit,
	TokenList:      CommandList,
	TokenCreate:    CommandCreate,
	TokenJoin:      CommandJoin,
	TokenLeave:     CommandLeave,
	TokenUsers:     CommandUsers,
	TokenRoomUsers: CommandRoomUsers,
	TokenWhisper:   CommandWhisper,
	TokenInvite:    CommandInvite,
}

func (k CommandKind) String() string {
	switch k {
	case CommandChat:
		return "chat"
	case CommandQuit:
		return TokenQuit
	case CommandList:
		return TokenList
	case CommandCreate:
		return TokenCreate
	case CommandJoin:
		return TokenJoin
	case CommandLeave:
		return TokenLeave
	case CommandUsers:
		return TokenUsers
	case CommandRoomUsers:
		return TokenRoomUsers
	case CommandWhisper:
		return TokenWhisper
	case CommandInvite:
		return TokenInvite
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Action is the category of effect a command has.
type Action int

const (
	// ActionReply only answers the sender.
	ActionReply Action = iota
	// ActionRegistry queries or mutates a registry.
	ActionRegistry
	// ActionRoom changes the sender's room membership.
	ActionRoom
	// ActionBroadcast delivers a chat line to the sender's room.
	ActionBroadcast
	// ActionDisconnect ends the session.
	ActionDisconnect
)

func (a Action) String() string {
	switch a {
	case ActionReply:
		return "reply"
	case ActionRegistry:
		return "registry"
	case ActionRoom:
		return "room"
	case ActionBroadcast:
		return "broadcast"
	case ActionDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Command is one classified input line.
//
// For CommandChat, Text is the line as received. For CommandWhisper, Args
// holds the recipient and Text the message with its inner spacing intact.
// For the remaining kinds Args holds the whitespace-separated arguments
// after the token.
type Command struct {
	Kind   CommandKind
	Action Action
	Args   []string
	Text   string
}

// Arg returns the i-th argument, or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Dispatch classifies line for a session in the given state. It has no side
// effects. Lines that do not start with a known token are chat messages; in
// the lobby they have nowhere to go and only earn the sender a reply.
func Dispatch(state State, line string) Command {
	fields := splitArgs(line, 2)
	if len(fields) == 0 {
		return chatCommand(state, line)
	}

	kind, ok := commandTokens[fields[0]]
	if !ok {
		return chatCommand(state, line)
	}

	switch kind {
	case CommandWhisper:
		parts := splitArgs(line, 3)
		cmd := Command{Kind: kind, Action: ActionRegistry}
		if len(parts) > 1 {
			cmd.Args = []string{parts[1]}
		}
		if len(parts) > 2 {
			cmd.Text = parts[2]
		}
		return cmd
	case CommandQuit:
		return Command{Kind: kind, Action: ActionDisconnect}
	case CommandInvite:
		return Command{Kind: kind, Action: ActionRegistry, Args: strings.Fields(line)[1:]}
	case CommandCreate, CommandJoin:
		return Command{Kind: kind, Action: ActionRoom, Args: strings.Fields(line)[1:]}
	case CommandLeave:
		return Command{Kind: kind, Action: ActionRoom}
	default:
		return Command{Kind: kind, Action: ActionReply, Args: strings.Fields(line)[1:]}
	}
}

func chatCommand(state State, line string) Command {
	action := ActionReply
	if state == StateInRoom {
		action = ActionBroadcast
	}
	return Command{Kind: CommandChat, Action: action, Text: line}
}

// splitArgs splits s on runs of whitespace into at most n fields. The last
// field keeps the remainder of s untouched apart from leading whitespace.
func splitArgs(s string, n int) []string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	var parts []string
	for s != "" && len(parts) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		parts = append(parts, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
