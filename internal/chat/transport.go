package chat

// Transport is the outbound port the core emits through. Implementations are
// best-effort: a slow or already-closed socket must never fail a domain
// operation, so none of these methods return errors.
type Transport interface {
	// Emit delivers an event to a single connection.
	Emit(connID string, event string, data interface{})
	// EmitRoom delivers an event to every connection in a room, skipping the
	// connection ids in except.
	EmitRoom(room string, event string, data interface{}, except ...string)
	// EmitAll delivers an event to every connection on this process (and,
	// via the backplane, on peer processes).
	EmitAll(event string, data interface{}, except ...string)
	// Join subscribes a connection to a room.
	Join(connID, room string)
	// Leave unsubscribes a connection from a room.
	Leave(connID, room string)
	// Close tears down a connection's socket. Used for forced eviction.
	Close(connID string)
}
