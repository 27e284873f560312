package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"chat-server/internal/backplane"
	"chat-server/internal/chat"
	"chat-server/internal/metrics"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// Hub tracks sockets and room membership on this process and implements the
// outbound transport the chat core emits through. Room and global broadcasts
// are optionally relayed to peer processes via a backplane; connection ids
// are uuids, so except-lists stay valid across processes.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	bp backplane.Backplane

	// OnEvent and OnDisconnect are wired at startup to the dispatcher. The
	// indirection keeps this package free of a dependency back into the
	// core's constructors.
	OnEvent      func(ctx context.Context, connID string, ev chat.InboundEvent)
	OnDisconnect func(ctx context.Context, connID string)
}

func NewHub(bp backplane.Backplane) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		bp:      bp,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	metrics.ActiveConnections.Inc()
	logger.Debug("Socket connected", logger.String("connection_id", c.id))
}

func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for room, members := range h.rooms {
			if _, in := members[connID]; in {
				delete(members, connID)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
		}
	}
	h.mu.Unlock()

	if ok {
		c.shutdown()
		metrics.ActiveConnections.Dec()
		logger.Debug("Socket disconnected", logger.String("connection_id", connID))
	}
}

// Emit delivers an event to a single connection on this process.
func (h *Hub) Emit(connID string, event string, data interface{}) {
	frame, ok := marshalFrame(event, data)
	if !ok {
		return
	}

	h.mu.Lock()
	c := h.clients[connID]
	h.mu.Unlock()

	if c != nil {
		h.deliver(c, frame)
	}
}

// EmitRoom delivers an event to every room member except the listed
// connection ids, locally and via the backplane.
func (h *Hub) EmitRoom(room string, event string, data interface{}, except ...string) {
	h.emitRoomLocal(room, event, data, except)
	h.publish(backplane.ScopeRoom, room, event, data, except)
}

// EmitAll delivers an event to every connection, locally and via the
// backplane.
func (h *Hub) EmitAll(event string, data interface{}, except ...string) {
	h.emitAllLocal(event, data, except)
	h.publish(backplane.ScopeAll, "", event, data, except)
}

// Join subscribes a connection to a room. Unknown connections are ignored;
// the socket may already be tearing down.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = c
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Close tears down a connection's socket. The read pump notices the closed
// connection and runs the regular disconnect path.
func (h *Hub) Close(connID string) {
	h.mu.Lock()
	c := h.clients[connID]
	h.mu.Unlock()

	if c != nil {
		c.conn.Close()
	}
}

// ApplyRemote applies a peer process's broadcast locally, without
// republishing.
func (h *Hub) ApplyRemote(ev *backplane.Event) {
	switch ev.Scope {
	case backplane.ScopeRoom:
		h.emitRoomLocal(ev.Room, ev.Event, ev.Data, ev.Except)
	case backplane.ScopeAll:
		h.emitAllLocal(ev.Event, ev.Data, ev.Except)
	default:
		logger.Warn("Dropping backplane event with unknown scope", logger.String("scope", ev.Scope))
	}
}

func (h *Hub) emitRoomLocal(room string, event string, data interface{}, except []string) {
	frame, ok := marshalFrame(event, data)
	if !ok {
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for connID, c := range h.rooms[room] {
		if !contains(except, connID) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.deliver(c, frame)
	}
}

func (h *Hub) emitAllLocal(event string, data interface{}, except []string) {
	frame, ok := marshalFrame(event, data)
	if !ok {
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for connID, c := range h.clients {
		if !contains(except, connID) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.deliver(c, frame)
	}
}

// deliver hands the frame to the client's write pump. A full send buffer
// means the client stopped draining; close the socket rather than block the
// caller.
func (h *Hub) deliver(c *Client, frame []byte) {
	if !c.enqueue(frame) {
		logger.Warn("Send buffer full, closing slow client",
			logger.String("connection_id", c.id),
		)
		c.conn.Close()
	}
}

func (h *Hub) publish(scope, room, event string, data interface{}, except []string) {
	if h.bp == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal backplane payload",
			logger.ErrorField(err),
			logger.String("event", event),
		)
		return
	}

	ev := &backplane.Event{
		Scope:  scope,
		Room:   room,
		Except: except,
		Event:  event,
		Data:   raw,
	}
	if err := h.bp.Publish(context.Background(), ev); err != nil {
		logger.Error("Failed to publish backplane event",
			logger.ErrorField(err),
			logger.String("event", event),
		)
	}
}

func marshalFrame(event string, data interface{}) ([]byte, bool) {
	frame, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		logger.Error("Failed to marshal outbound event",
			logger.ErrorField(err),
			logger.String("event", event),
		)
		return nil, false
	}
	return frame, true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
