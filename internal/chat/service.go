package chat

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DefaultMaxNicknameLength bounds nicknames when Options leaves it unset.
const DefaultMaxNicknameLength = 32

const (
	placeholderPrefix   = "Anonymous"
	placeholderAttempts = 8
)

// Options configures a Service. Zero values fall back to no-op collaborators,
// the default logger and DefaultMaxNicknameLength.
type Options struct {
	History           History
	Events            Events
	Logger            *slog.Logger
	MaxNicknameLength int
	RateLimit         RateLimit

	// Now overrides the clock used by session rate limiters.
	Now func() time.Time
}

// Service owns the process-wide registries and builds sessions that share
// them.
type Service struct {
	users   *ConnectionRegistry
	rooms   *RoomRegistry
	history History
	events  Events
	logger  *slog.Logger
	opts    Options
}

// Stats is a point-in-time summary of the registries.
type Stats struct {
	Users       int         `json:"users"`
	Rooms       int         `json:"rooms"`
	RoomMembers map[int]int `json:"room_members"`
}

// NewService creates a Service with empty registries.
func NewService(opts Options) *Service {
	if opts.History == nil {
		opts.History = NopHistory{}
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxNicknameLength <= 0 {
		opts.MaxNicknameLength = DefaultMaxNicknameLength
	}

	return &Service{
		users:   NewConnectionRegistry(),
		rooms:   NewRoomRegistry(opts.Events, opts.Logger),
		history: opts.History,
		events:  opts.Events,
		logger:  opts.Logger,
		opts:    opts,
	}
}

// Users returns the connection registry.
func (s *Service) Users() *ConnectionRegistry {
	return s.users
}

// Rooms returns the room registry.
func (s *Service) Rooms() *RoomRegistry {
	return s.rooms
}

// NewSession wraps conn in a Session bound to this service. The caller runs
// it with Session.Run.
func (s *Service) NewSession(conn Conn) *Session {
	return &Session{
		svc:     s,
		conn:    conn,
		logger:  s.logger.With("remote_addr", conn.RemoteAddr()),
		limiter: newRateLimiter(s.opts.RateLimit, s.opts.Now),
		state:   StateNegotiating,
	}
}

// Stats summarizes the current registries.
func (s *Service) Stats() Stats {
	stats := Stats{
		Users:       s.users.Len(),
		RoomMembers: make(map[int]int),
	}
	for _, id := range s.rooms.IDs() {
		room, err := s.rooms.Get(id)
		if err != nil {
			continue
		}
		stats.RoomMembers[id] = room.Len()
	}
	stats.Rooms = len(stats.RoomMembers)
	return stats
}

// claimNickname validates the requested nickname and registers it for sink.
// A blank request gets a generated placeholder.
func (s *Service) claimNickname(requested string, sink Sink) (string, error) {
	nickname := strings.TrimSpace(requested)
	if nickname == "" {
		return s.claimPlaceholder(sink)
	}
	if err := s.validateNickname(nickname); err != nil {
		return "", err
	}
	if err := s.users.Register(nickname, sink); err != nil {
		return "", err
	}
	return nickname, nil
}

func (s *Service) claimPlaceholder(sink Sink) (string, error) {
	var err error
	for i := 0; i < placeholderAttempts; i++ {
		nickname := placeholderPrefix + uuid.NewString()[:8]
		if err = s.users.Register(nickname, sink); err == nil {
			return nickname, nil
		}
	}
	return "", err
}

func (s *Service) validateNickname(nickname string) error {
	if nickname == InviteSentinel {
		return newNicknameInvalidError(nickname, "is reserved")
	}
	if strings.HasPrefix(nickname, "/") {
		return newNicknameInvalidError(nickname, "starts with '/'")
	}
	if strings.IndexFunc(nickname, unicode.IsSpace) >= 0 {
		return newNicknameInvalidError(nickname, "contains whitespace")
	}
	if len([]rune(nickname)) > s.opts.MaxNicknameLength {
		return newNicknameInvalidError(nickname, "is too long")
	}
	return nil
}
