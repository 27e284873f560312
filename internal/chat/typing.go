package chat

import (
	"context"
	"time"

	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// TypingTracker reflects ephemeral typing state into rooms. A connection can
// be typing in one channel room and one DM room at a time (independent
// slots). Clients debounce their own stop events; the server-side sweeper is
// optional and disabled when expiry is zero.
type TypingTracker struct {
	transport    Transport
	registry     *Registry
	expiry       time.Duration
	stopOnSwitch bool
}

func NewTypingTracker(transport Transport, registry *Registry, expiry time.Duration, stopOnSwitch bool) *TypingTracker {
	return &TypingTracker{
		transport:    transport,
		registry:     registry,
		expiry:       expiry,
		stopOnSwitch: stopOnSwitch,
	}
}

// Start marks the connection typing in the target room and tells the rest of
// the room.
func (t *TypingTracker) Start(conn *Connection, mt MessageType, targetID string) error {
	room, err := t.roomFor(conn, mt, targetID)
	if err != nil {
		return err
	}

	if t.stopOnSwitch {
		if slot := conn.typingSlot(mt); slot.Active && slot.Room != room {
			t.broadcast(conn, mt, slot.Room, false, "")
		}
	}

	now := time.Now()
	conn.setTypingSlot(mt, TypingSlot{Room: room, Active: true, StartedAt: now})
	t.broadcast(conn, mt, room, true, "")
	return nil
}

// Stop clears the typing flag and tells the room.
func (t *TypingTracker) Stop(conn *Connection, mt MessageType, targetID string) error {
	room, err := t.roomFor(conn, mt, targetID)
	if err != nil {
		return err
	}

	conn.setTypingSlot(mt, TypingSlot{})
	t.broadcast(conn, mt, room, false, "")
	return nil
}

// CleanupDisconnect emits a synthetic stop for whatever rooms the connection
// was typing in. Mandatory on the disconnect path so indicators don't stick.
func (t *TypingTracker) CleanupDisconnect(conn *Connection) {
	for _, mt := range []MessageType{MessageTypeChannel, MessageTypeDirect} {
		if slot := conn.typingSlot(mt); slot.Active {
			t.broadcast(conn, mt, slot.Room, false, "user_disconnected")
			conn.setTypingSlot(mt, TypingSlot{})
		}
	}
}

// RunSweeper expires stale typing slots when a client vanished without a
// clean disconnect. No-op unless an expiry is configured.
func (t *TypingTracker) RunSweeper(ctx context.Context) {
	if t.expiry <= 0 {
		return
	}

	interval := t.expiry / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *TypingTracker) sweep() {
	cutoff := time.Now().Add(-t.expiry)
	for _, conn := range t.registry.Connections() {
		for _, mt := range []MessageType{MessageTypeChannel, MessageTypeDirect} {
			slot := conn.typingSlot(mt)
			if slot.Active && slot.StartedAt.Before(cutoff) {
				t.broadcast(conn, mt, slot.Room, false, "timeout")
				conn.setTypingSlot(mt, TypingSlot{})
				logger.Debug("Expired stale typing indicator",
					logger.String("user_id", conn.UserID),
					logger.String("room", slot.Room),
				)
			}
		}
	}
}

func (t *TypingTracker) roomFor(conn *Connection, mt MessageType, targetID string) (string, error) {
	switch mt {
	case MessageTypeChannel:
		if targetID == "" {
			targetID = conn.CurrentChannel()
		}
		if targetID == "" {
			return "", validationErr("no channel specified for typing event")
		}
		return targetID, nil
	case MessageTypeDirect:
		if targetID == "" {
			return "", validationErr("no target user specified for typing event")
		}
		return DMRoomID(conn.UserID, targetID), nil
	}
	return "", validationErr("invalid message type: %s", mt)
}

func (t *TypingTracker) broadcast(conn *Connection, mt MessageType, room string, typing bool, reason string) {
	t.transport.EmitRoom(room, models.EventUserTyping, &models.TypingNotice{
		Username:    conn.Username,
		UserID:      conn.UserID,
		Room:        room,
		MessageType: string(mt),
		IsTyping:    typing,
		Timestamp:   time.Now(),
		Reason:      reason,
	}, conn.ID)
}
