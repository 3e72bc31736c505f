package ws

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"chess-server/internal/eventbus"
	"chess-server/internal/metrics"
)

const gameRoomPrefix = "game:"

// Hub tracks the sockets on this node and their room memberships. Emits
// are non-blocking: a slow client's queue overflowing drops the message
// for that client rather than stalling the caller, which may hold a game
// lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	bus    *eventbus.EventBus
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

// AttachBus wires the cross-node broadcaster. The bus is constructed
// after the hub because it delivers remote events through DeliverRemote.
func (h *Hub) AttachBus(bus *eventbus.EventBus) {
	h.bus = bus
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	metrics.ConnectedClients.Inc()
	h.logger.Debug("client connected",
		zap.String("userId", c.userID),
		zap.String("connId", c.connID))
}

// unregister removes the client from every room and closes its queue.
// It returns the game ids whose rooms the client was in, so the caller
// can arm disconnect markers once the socket is fully gone.
func (h *Hub) unregister(c *Client) []string {
	h.mu.Lock()
	var gameIDs []string
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		for room := range c.rooms {
			if members, ok := h.rooms[room]; ok {
				delete(members, c)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
			if id, ok := strings.CutPrefix(room, gameRoomPrefix); ok {
				gameIDs = append(gameIDs, id)
			}
		}
		close(c.send)
	}
	h.mu.Unlock()

	metrics.ConnectedClients.Dec()
	h.logger.Debug("client disconnected",
		zap.String("userId", c.userID),
		zap.String("connId", c.connID))
	return gameIDs
}

// Join adds a client to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.rooms[room] = true
}

// Leave removes a client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit broadcasts an event to a room on this node and, through the
// eventbus, on every other node.
func (h *Hub) Emit(room, event string, payload interface{}) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("event encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.emitLocal(room, msg)
	if h.bus != nil {
		h.bus.Publish(room, msg)
	}
}

// EmitAll sends an event to every socket on this node.
func (h *Hub) EmitAll(event string, payload interface{}) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("event encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// DeliverRemote hands an event published on another node to local room
// members.
func (h *Hub) DeliverRemote(room string, msg []byte) {
	h.emitLocal(room, msg)
}

func (h *Hub) emitLocal(room string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if !c.enqueue(msg) {
			h.logger.Warn("dropping message for slow client",
				zap.String("room", room),
				zap.String("userId", c.userID))
		}
	}
}

// Count reports how many local sockets are in a room.
func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CountUser reports how many local sockets of one user are in a room.
func (h *Hub) CountUser(room, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[room] {
		if c.userID == userID {
			n++
		}
	}
	return n
}

// ClientCount reports the number of sockets connected to this node.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
