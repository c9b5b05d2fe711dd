package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"consultation-service/internal/models"
	"consultation-service/internal/observability"
)

// client is the hub's bookkeeping for one connection. Writes to a gorilla
// connection may not interleave, so every write goes through mu.
type client struct {
	info ConnInfo
	mu   sync.Mutex
}

// Hub maintains the active websocket room of each consultation.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*websocket.Conn]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]map[*websocket.Conn]*client)}
}

// AddClient registers a connection in a consultation room.
func (h *Hub) AddClient(consultationID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[consultationID]; !ok {
		h.rooms[consultationID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[consultationID][conn] = &client{info: info}
}

// RemoveClient removes a connection from a consultation room.
func (h *Hub) RemoveClient(consultationID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[consultationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, consultationID)
		}
	}
}

// RoomSize reports how many connections a consultation room holds.
func (h *Hub) RoomSize(consultationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[consultationID])
}

// BroadcastMessage delivers a new chat message to every connection of the
// consultation.
func (h *Hub) BroadcastMessage(consultationID int64, msg models.ChatMessage) {
	h.broadcast(consultationID, models.ChatEvent{Type: models.EventMessage, Message: &msg})
}

// BroadcastStatus delivers a status-change notification to the room of the
// affected consultation. Receivers treat it as a trigger to reload the
// authoritative record.
func (h *Hub) BroadcastStatus(change models.StatusChange) {
	h.broadcast(change.ConsultationID, models.ChatEvent{Type: models.EventStatusChange, StatusChange: &change})
}

func (h *Hub) broadcast(consultationID int64, event models.ChatEvent) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.rooms[consultationID]))
	for conn, cl := range h.rooms[consultationID] {
		targets[conn] = cl
	}
	h.mu.RUnlock()

	for conn, cl := range targets {
		if err := writeEvent(conn, cl, event); err != nil {
			log.Warn().Err(err).Int64("consultation_id", consultationID).Msg("websocket write error")
			conn.Close()
			h.RemoveClient(consultationID, conn)
			h.publishWSError(consultationID, cl.info, err)
		}
	}
}

// Send writes an event to a single connection of the room.
func (h *Hub) Send(consultationID int64, conn *websocket.Conn, event models.ChatEvent) error {
	h.mu.RLock()
	cl := h.rooms[consultationID][conn]
	h.mu.RUnlock()
	if cl == nil {
		return websocket.ErrCloseSent
	}
	return writeEvent(conn, cl, event)
}

// CloseRoom disconnects every connection of a consultation. Used when the
// consultation reaches a terminal status: no channel may outlive it.
func (h *Hub) CloseRoom(consultationID int64) {
	h.mu.Lock()
	conns := h.rooms[consultationID]
	delete(h.rooms, consultationID)
	h.mu.Unlock()

	for conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "consultation closed"),
			closeDeadline())
		conn.Close()
	}
}

func writeEvent(conn *websocket.Conn, cl *client, event models.ChatEvent) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return conn.WriteJSON(event)
}

func (h *Hub) publishWSError(consultationID int64, info ConnInfo, err error) {
	observability.IncWSEvent("ws_error")
	publishWSEvent(consultationID, info, "ws_error", err.Error())
}
