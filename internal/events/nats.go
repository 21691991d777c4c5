package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by NATSPublisher.
const (
	SubjectRoomCreated      = "chat.room.created"
	SubjectRoomDeleted      = "chat.room.deleted"
	SubjectUserConnected    = "chat.user.connected"
	SubjectUserDisconnected = "chat.user.disconnected"
	SubjectMessage          = "chat.message"
)

// Event is the JSON payload of every published notification.
type Event struct {
	Type     string    `json:"type"`
	RoomID   int       `json:"room_id,omitempty"`
	Nickname string    `json:"nickname,omitempty"`
	Text     string    `json:"text,omitempty"`
	Time     time.Time `json:"time"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes notifications as JSON. Publish failures are logged
// and otherwise ignored so a broker outage never stalls a chat session.
type NATSPublisher struct {
	pub    publisher
	conn   *nats.Conn
	logger *slog.Logger
	now    func() time.Time
}

// ConnectNATS dials url with unlimited reconnects and returns a publisher
// owning the connection.
func ConnectNATS(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("roomchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	p := newNATSPublisher(conn, logger)
	p.conn = conn
	return p, nil
}

func newNATSPublisher(pub publisher, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		pub:    pub,
		logger: logger.With("component", "nats"),
		now:    time.Now,
	}
}

func (p *NATSPublisher) UserConnected(nickname string) {
	p.publish(SubjectUserConnected, Event{Type: "user_connected", Nickname: nickname})
}

func (p *NATSPublisher) UserDisconnected(nickname string) {
	p.publish(SubjectUserDisconnected, Event{Type: "user_disconnected", Nickname: nickname})
}

func (p *NATSPublisher) RoomCreated(roomID int) {
	p.publish(SubjectRoomCreated, Event{Type: "room_created", RoomID: roomID})
}

func (p *NATSPublisher) RoomDeleted(roomID int) {
	p.publish(SubjectRoomDeleted, Event{Type: "room_deleted", RoomID: roomID})
}

func (p *NATSPublisher) MessageSent(roomID int, nickname, text string) {
	p.publish(SubjectMessage, Event{Type: "message", RoomID: roomID, Nickname: nickname, Text: text})
}

// Close flushes pending messages and closes an owned connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

func (p *NATSPublisher) publish(subject string, ev Event) {
	ev.Time = p.now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encode event", "subject", subject, "error", err)
		return
	}
	if err := p.pub.Publish(subject, data); err != nil {
		p.logger.Warn("publish event", "subject", subject, "error", err)
	}
}
