package chat

import (
	"context"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// PresenceTracker drives the per-user availability state machine:
// OFFLINE -> ONLINE on join, any-to-any among the present states on explicit
// updates, and back to OFFLINE on disconnect. The durable copy lives in the
// store; the live copy is the connection's denormalized status field.
type PresenceTracker struct {
	store     database.Store
	transport Transport
	registry  *Registry
}

func NewPresenceTracker(store database.Store, transport Transport, registry *Registry) *PresenceTracker {
	return &PresenceTracker{
		store:     store,
		transport: transport,
		registry:  registry,
	}
}

// SetOnline persists status=ONLINE plus the login timestamp and updates the
// live connection.
func (p *PresenceTracker) SetOnline(ctx context.Context, conn *Connection) error {
	if err := p.store.SetUserOnline(ctx, conn.UserID); err != nil {
		return persistErr(err, "user")
	}
	conn.setStatus(models.StatusOnline)
	return nil
}

// SetStatus validates and applies an explicit status update, then broadcasts
// the full presence list to everyone. An invalid status leaves the prior
// status untouched.
func (p *PresenceTracker) SetStatus(ctx context.Context, conn *Connection, raw string) error {
	status, err := models.ParseStatus(raw)
	if err != nil {
		return validationErr("invalid status: %s", raw)
	}

	if err := p.store.UpdateUserStatus(ctx, conn.UserID, status); err != nil {
		return persistErr(err, "user status update")
	}
	conn.setStatus(status)

	logger.Info("Updated user status",
		logger.String("user_id", conn.UserID),
		logger.String("status", string(status)),
	)

	p.BroadcastUsers()
	return nil
}

// SetOffline persists OFFLINE on disconnect. The in-memory record is dropped
// by the registry rather than retained with a flag; persistence is the only
// lasting record.
func (p *PresenceTracker) SetOffline(ctx context.Context, userID string) error {
	if err := p.store.UpdateUserStatus(ctx, userID, models.StatusOffline); err != nil {
		return persistErr(err, "user status update")
	}
	return nil
}

// BroadcastUsers emits the full active-user list to all connections. Full
// lists instead of deltas trade bandwidth for ordering simplicity.
func (p *PresenceTracker) BroadcastUsers() {
	p.transport.EmitAll(models.EventUsersList, p.registry.ListActive())
}
