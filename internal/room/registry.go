package room

import "sync"

// Registry is the process-wide join code → live room map. Join-code
// uniqueness is enforced by the store, not here; the registry only tracks
// rooms that were successfully persisted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (r *Registry) Get(joinCode string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[joinCode]
	return room, ok
}

func (r *Registry) Put(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.JoinCode] = room
}

func (r *Registry) Remove(joinCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, joinCode)
}

// Rooms returns a snapshot of the live rooms.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
