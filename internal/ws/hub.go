package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Emitter is the fan-out surface the command handlers use. Sends are
// best-effort non-blocking enqueues; a slow client never stalls a room.
type Emitter interface {
	EmitTo(connID, event string, payload interface{})
	EmitToRoom(joinCode, event string, payload interface{})
	Join(connID, joinCode string)
	Leave(connID, joinCode string)
	DropRoom(joinCode string)
}

// Hub tracks live connections and room membership for fan-out. Room
// membership here is purely a delivery group; the Room owns the
// authoritative participant set.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	for code, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

func (h *Hub) Join(connID, joinCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[joinCode]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[joinCode] = members
	}
	members[connID] = c
}

func (h *Hub) Leave(connID, joinCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[joinCode]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, joinCode)
		}
	}
}

// DropRoom removes the whole delivery group, e.g. when a session ends.
func (h *Hub) DropRoom(joinCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, joinCode)
}

func (h *Hub) EmitTo(connID, event string, payload interface{}) {
	data, err := Marshal(event, payload)
	if err != nil {
		h.log.Error("marshal outbound frame", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !c.Enqueue(data) {
		h.log.Warn("outbox saturated, frame dropped",
			zap.String("conn", connID), zap.String("event", event))
	}
}

func (h *Hub) EmitToRoom(joinCode, event string, payload interface{}) {
	data, err := Marshal(event, payload)
	if err != nil {
		h.log.Error("marshal outbound frame", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[joinCode]))
	for _, c := range h.rooms[joinCode] {
		members = append(members, c)
	}
	h.mu.RUnlock()
	for _, c := range members {
		if !c.Enqueue(data) {
			h.log.Warn("outbox saturated, frame dropped",
				zap.String("conn", c.ID), zap.String("event", event))
		}
	}
}

// Count reports the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
