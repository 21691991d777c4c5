// Package events fans chat lifecycle notifications out to observers: the
// structured log and an optional NATS subject tree.
package events

import (
	"log/slog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Logger records every notification on a slog.Logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns observers writing at debug level to logger.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "events")}
}

func (l *Logger) UserConnected(nickname string) {
	l.logger.Debug("user connected", "nickname", nickname)
}

func (l *Logger) UserDisconnected(nickname string) {
	l.logger.Debug("user disconnected", "nickname", nickname)
}

func (l *Logger) RoomCreated(roomID int) {
	l.logger.Debug("room created", "room_id", roomID)
}

func (l *Logger) RoomDeleted(roomID int) {
	l.logger.Debug("room deleted", "room_id", roomID)
}

func (l *Logger) MessageSent(roomID int, nickname, text string) {
	l.logger.Debug("message sent", "room_id", roomID, "nickname", nickname, "length", len(text))
}

// Multi forwards each notification to every observer in order.
type Multi []chat.Events

func (m Multi) UserConnected(nickname string) {
	for _, e := range m {
		e.UserConnected(nickname)
	}
}

func (m Multi) UserDisconnected(nickname string) {
	for _, e := range m {
		e.UserDisconnected(nickname)
	}
}

func (m Multi) RoomCreated(roomID int) {
	for _, e := range m {
		e.RoomCreated(roomID)
	}
}

func (m Multi) RoomDeleted(roomID int) {
	for _, e := range m {
		e.RoomDeleted(roomID)
	}
}

func (m Multi) MessageSent(roomID int, nickname, text string) {
	for _, e := range m {
		e.MessageSent(roomID, nickname, text)
	}
}
