package chat

import (
	"sort"
	"sync"
)

// ConnectionRegistry maps the nickname of every connected client to its
// outbound Sink. A nickname is held by at most one client at a time.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sinks: make(map[string]Sink),
	}
}

// Register claims nickname for sink. The uniqueness check and the insert
// happen under one lock, so concurrent registrations of the same nickname
// cannot both succeed.
func (r *ConnectionRegistry) Register(nickname string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sinks[nickname]; taken {
		return newNicknameTakenError(nickname)
	}
	r.sinks[nickname] = sink
	return nil
}

// Unregister releases nickname. It reports whether the nickname was held and
// is a no-op otherwise.
func (r *ConnectionRegistry) Unregister(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[nickname]; !ok {
		return false
	}
	delete(r.sinks, nickname)
	return true
}

// Lookup returns the sink registered under nickname.
func (r *ConnectionRegistry) Lookup(nickname string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sinks[nickname]
	if !ok {
		return nil, newRecipientNotFoundError(nickname)
	}
	return sink, nil
}

// Nicknames returns the registered nicknames in ascending order.
func (r *ConnectionRegistry) Nicknames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered nicknames.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
