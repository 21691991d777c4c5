package chat

import (
	"errors"
	"fmt"
)

var (
	// Registry errors
	ErrNicknameTaken     = errors.New("nickname already in use")
	ErrNicknameInvalid   = errors.New("invalid nickname")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrRoomNotFound      = errors.New("room not found")

	// Session errors
	ErrMalformedCommand = errors.New("malformed command")
	ErrNotInRoom        = errors.New("not in a room")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrSessionClosed    = errors.New("session closed")
)

func newNicknameTakenError(nickname string) error {
	return fmt.Errorf("%w: %s", ErrNicknameTaken, nickname)
}

func newNicknameInvalidError(nickname, reason string) error {
	return fmt.Errorf("%w: %q %s", ErrNicknameInvalid, nickname, reason)
}

func newRecipientNotFoundError(nickname string) error {
	return fmt.Errorf("%w: %s", ErrRecipientNotFound, nickname)
}

func newRoomNotFoundError(id int) error {
	return fmt.Errorf("%w: %d", ErrRoomNotFound, id)
}

func newMalformedCommandError(kind CommandKind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedCommand, kind, reason)
}
