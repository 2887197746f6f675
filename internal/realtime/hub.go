package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Room name prefixes. Rooms scope event fan-out: parcel rooms carry status
// and tracking events for one shipment, user/customer/agent rooms carry
// per-account notifications.
const (
	RoomParcel   = "parcel"
	RoomUser     = "user"
	RoomCustomer = "customer"
	RoomAgent    = "agent"
)

// Frame is the wire format on the websocket channel, both directions.
// Client frames carry join commands; server frames carry pushed events.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans server events out to subscribed sessions. Room membership is
// per-connection and does not survive a reconnect; clients re-emit their
// join commands on every connect.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	sessions map[*Session]struct{}

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]struct{}),
		log:      log,
	}
}

// Broadcast pushes an event to every session in the room. Sessions whose
// send buffer is full are dropped rather than allowed to stall the hub.
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal realtime payload",
			zap.String("event", event), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Payload: raw})
	if err != nil {
		return
	}

	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		if !s.enqueue(frame) {
			h.log.Warn("dropping slow realtime session", zap.String("room", room))
			h.detach(s)
			s.close()
		}
	}
}

// RoomName builds the canonical room key for a prefix and id.
func RoomName(prefix, id string) string {
	return prefix + ":" + id
}

func (h *Hub) attach(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s)
	for room := range s.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

func (h *Hub) join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

// RoomSize reports current membership of a room (used by tests and the
// health endpoint).
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// SessionCount reports the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
