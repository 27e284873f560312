package chat

import (
	"sync"
	"time"

	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// Registry tracks live connections, one per user. It owns its two maps
// exclusively; a multi-process deployment composes one Registry per process
// and relies on the backplane only for broadcasts, never for the
// single-session invariant.
type Registry struct {
	transport Transport

	// mu guards both maps. Check, evict and insert happen under one
	// critical section with no persistence call in between.
	mu     sync.Mutex
	byID   map[string]*Connection
	byUser map[string]string // user id -> connection id
}

func NewRegistry(transport Transport) *Registry {
	return &Registry{
		transport: transport,
		byID:      make(map[string]*Connection),
		byUser:    make(map[string]string),
	}
}

// Register inserts a connection for the user, forcibly evicting any prior
// session. Eviction is best-effort: the superseded socket gets a
// force_disconnect notice and a close, and failures there are ignored.
// The check-evict-insert sequence holds the lock throughout so two live
// entries for one user can never coexist.
func (r *Registry) Register(connID, userID, username string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldID, ok := r.byUser[userID]; ok && oldID != connID {
		r.transport.Emit(oldID, models.EventForceDisconnect, &models.ForceDisconnect{
			Reason:  "new_session",
			Message: "You have been logged in from another device",
		})
		r.transport.Close(oldID)
		delete(r.byID, oldID)
		delete(r.byUser, userID)
		logger.Info("Evicted superseded session",
			logger.String("user_id", userID),
			logger.String("old_connection_id", oldID),
			logger.String("new_connection_id", connID),
		)
	}

	conn := &Connection{
		ID:       connID,
		UserID:   userID,
		Username: username,
		JoinedAt: time.Now(),
	}
	conn.setStatus(models.StatusOnline)

	r.byID[connID] = conn
	r.byUser[userID] = connID
	return conn
}

// Lookup resolves a connection by id.
func (r *Registry) Lookup(connID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byID[connID]
	return conn, ok
}

// LookupUser resolves the live connection for a user, if any.
func (r *Registry) LookupUser(userID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connID, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	conn, ok := r.byID[connID]
	return conn, ok
}

// Unregister drops both mappings. No-op when the connection is already gone,
// which makes double-disconnects safe.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return
	}
	delete(r.byID, connID)
	if r.byUser[conn.UserID] == connID {
		delete(r.byUser, conn.UserID)
	}
}

// ListActive returns presence summaries for every live connection. Ordering
// follows map iteration and carries no meaning.
func (r *Registry) ListActive() []*models.ActiveUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*models.ActiveUser, 0, len(r.byID))
	for _, connID := range r.byUser {
		if conn, ok := r.byID[connID]; ok {
			users = append(users, conn.Summary())
		}
	}
	return users
}

// Connections snapshots every live connection. Used by the typing sweeper.
func (r *Registry) Connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	return conns
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
