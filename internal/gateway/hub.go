package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrawlgame/scrawl/internal/game"
)

// Message is the wire envelope in both directions: an event type and an
// opaque payload.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent wraps a payload in the wire envelope.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: event, Data: data})
}

// Hub is the connection registry: every connected session, and the room
// group each session is attached to. It implements game.Broadcaster.
// A session whose send buffer stays full is evicted rather than allowed
// to stall fan-out for the rest of the room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Client
	rooms    map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Attach moves a session into a room's broadcast group.
func (h *Hub) Attach(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	h.detachLocked(c)
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.roomID = roomID
	log.Debug().Str("room_id", roomID).Str("session_id", sessionID).
		Int("room_connections", len(h.rooms[roomID])).Msg("session attached to room")
}

// ToRoom delivers to every session attached to the room, sender included.
func (h *Hub) ToRoom(roomID, event string, payload any) {
	h.fanOut(roomID, "", event, payload)
}

// ToRoomExcept delivers to every session attached to the room but the
// sender.
func (h *Hub) ToRoomExcept(roomID, senderID, event string, payload any) {
	h.fanOut(roomID, senderID, event, payload)
}

// ToSession delivers to one recipient. Unknown sessions are dropped
// silently; the recipient may have disconnected since the event was
// produced.
func (h *Hub) ToSession(sessionID, event string, payload any) {
	data, err := EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(c, data)
}

func (h *Hub) fanOut(roomID, exceptID, event string, payload any) {
	data, err := EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if exceptID != "" && c.id == exceptID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		// c.roomID is guarded by h.mu and may be mid-reattach here; the
		// session id alone identifies the evicted connection.
		log.Warn().Str("session_id", c.id).Msg("send buffer full, evicting connection")
		h.unregister(c)
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.sessions[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.sessions[c.id]; !ok || current != c {
		return
	}
	delete(h.sessions, c.id)
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *Client) {
	if c.roomID == "" {
		return
	}
	if group, ok := h.rooms[c.roomID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	c.roomID = ""
}

var _ game.Broadcaster = (*Hub)(nil)
