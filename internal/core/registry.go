package core

import (
	"sort"
	"sync"
)

// Registry maps room keys to the sessions currently subscribed to them.
// It does not own session lifetime; sessions leave on Close.
//
// A session is in at most one room. Join moves it atomically, so there is no
// window where it is a member of two rooms.
//
// Lock order: Registry.mu, then Session.mu.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Session]struct{})}
}

// Join adds s to room, removing it from its previous room in the same critical
// section. Joining the current room again is a no-op.
func (r *Registry) Join(room string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.room == room {
		r.add(room, s)
		return nil
	}
	if s.room != "" {
		r.remove(s.room, s)
	}
	r.add(room, s)
	s.room = room
	return nil
}

// Leave removes s from room. Returns false if s was not a member.
func (r *Registry) Leave(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.remove(room, s)

	s.mu.Lock()
	if s.room == room {
		s.room = ""
	}
	s.mu.Unlock()

	return removed
}

// Members returns a snapshot of the sessions in room. The slice is owned by the caller.
func (r *Registry) Members(room string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// Contains reports whether s is currently a member of room.
func (r *Registry) Contains(room string, s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[room][s]
	return ok
}

// Count returns the number of sessions in room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the sorted keys of all rooms with at least one member.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) add(room string, s *Session) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}
}

func (r *Registry) remove(room string, s *Session) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[s]; !exists {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	return true
}
