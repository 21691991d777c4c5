package chat

import (
	"log/slog"
	"sort"
	"sync"
)

// Room is a numbered set of members that receive each other's broadcasts.
// A room removes itself from its registry when its last member leaves; once
// that happens it is closed for good and refuses new members.
type Room struct {
	id       int
	registry *RoomRegistry
	logger   *slog.Logger

	mu      sync.RWMutex
	members map[Member]struct{}
	closed  bool
}

func newRoom(id int, registry *RoomRegistry, logger *slog.Logger) *Room {
	return &Room{
		id:       id,
		registry: registry,
		logger:   logger,
		members:  make(map[Member]struct{}),
	}
}

// ID returns the room identifier.
func (r *Room) ID() int {
	return r.id
}

// AddMember adds m to the room. Adding an existing member is a no-op.
// It fails with ErrRoomNotFound once the room has been deleted.
func (r *Room) AddMember(m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return newRoomNotFoundError(r.id)
	}
	r.members[m] = struct{}{}
	r.logger.Debug("member joined room", "room_id", r.id, "nickname", m.Nickname(), "members", len(r.members))
	return nil
}

// RemoveMember removes m from the room and reports whether it was a member.
// Removing the last member closes the room and evicts it from the registry.
func (r *Room) RemoveMember(m Member) bool {
	r.mu.Lock()
	if _, ok := r.members[m]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, m)
	remaining := len(r.members)
	if remaining == 0 {
		r.closed = true
	}
	r.mu.Unlock()

	r.logger.Debug("member left room", "room_id", r.id, "nickname", m.Nickname(), "members", remaining)

	if remaining == 0 && r.registry != nil {
		r.registry.removeIfEmpty(r.id)
	}
	return true
}

// Broadcast sends line to every member present when the call is made and
// returns how many members it was handed to. Sends happen outside the room
// lock.
func (r *Room) Broadcast(line string) int {
	members := r.snapshot()

	delivered := 0
	for _, m := range members {
		if err := m.Send(line); err != nil {
			r.logger.Warn("broadcast delivery failed",
				"room_id", r.id,
				"nickname", m.Nickname(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Members returns the nicknames of the current members in ascending order.
func (r *Room) Members() []string {
	members := r.snapshot()
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Nickname()
	}
	return names
}

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Closed reports whether the room has been deleted.
func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// snapshot copies the member set under the read lock, ordered by nickname so
// delivery order is deterministic for a given membership.
func (r *Room) snapshot() []Member {
	r.mu.RLock()
	members := make([]Member, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		return members[i].Nickname() < members[j].Nickname()
	})
	return members
}
