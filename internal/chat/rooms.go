package chat

import (
	"log/slog"
	"sort"
	"sync"
)

// RoomRegistry maps room ids to live rooms and hands out ids from a
// monotonic counter. Ids are never reused within a process.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[int]*Room
	nextID int

	events Events
	logger *slog.Logger
}

// NewRoomRegistry returns an empty registry whose first room gets id 1.
func NewRoomRegistry(events Events, logger *slog.Logger) *RoomRegistry {
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomRegistry{
		rooms:  make(map[int]*Room),
		nextID: 1,
		events: events,
		logger: logger,
	}
}

// Create allocates the next id, registers an empty room under it and returns
// the room.
func (r *RoomRegistry) Create() *Room {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	room := newRoom(id, r, r.logger)
	r.rooms[id] = room
	total := len(r.rooms)
	r.mu.Unlock()

	r.logger.Info("room created", "room_id", id, "rooms", total)
	r.events.RoomCreated(id)
	return room
}

// Get returns the live room with the given id.
func (r *RoomRegistry) Get(id int) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, newRoomNotFoundError(id)
	}
	return room, nil
}

// IDs returns the ids of the live rooms in ascending order.
func (r *RoomRegistry) IDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// removeIfEmpty evicts the room with the given id once it has closed. Rooms
// call it after their last member leaves.
func (r *RoomRegistry) removeIfEmpty(id int) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	if !ok || !room.Closed() {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, id)
	total := len(r.rooms)
	r.mu.Unlock()

	r.logger.Info("room deleted", "room_id", id, "rooms", total)
	r.events.RoomDeleted(id)
}
