package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// DMRoomID derives the room for a user pair. The pair is sorted so both
// participants compute the same room without a lookup table.
func DMRoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

// RoomRouter owns channel and DM room membership. It is the only component
// that mutates a connection's current-channel and current-DM-room fields.
type RoomRouter struct {
	store        database.Store
	transport    Transport
	historyLimit int
}

func NewRoomRouter(store database.Store, transport Transport, historyLimit int) *RoomRouter {
	return &RoomRouter{
		store:        store,
		transport:    transport,
		historyLimit: historyLimit,
	}
}

// JoinInitial places a freshly registered connection into its first channel
// room and delivers history. Used by the join handshake only; channel switch
// notifications are JoinChannel's job.
func (rr *RoomRouter) JoinInitial(ctx context.Context, conn *Connection, channelID string) (*models.Channel, error) {
	channel, err := rr.store.FindChannelByID(ctx, channelID)
	if err != nil {
		return nil, persistErr(err, "channel")
	}
	if err := rr.authorize(ctx, conn, channel); err != nil {
		return nil, err
	}

	rr.enter(ctx, conn, channel.ID)

	rr.transport.EmitRoom(channel.ID, models.EventUserChannelJoined, &models.UserChannelJoined{
		Username:  conn.Username,
		UserID:    conn.UserID,
		Channel:   channel.ID,
		Timestamp: time.Now(),
	}, conn.ID)

	return channel, nil
}

// JoinChannel switches the connection to another channel room and returns the
// previous channel id. Re-joining the current channel is a no-op that still
// re-delivers history, which clients rely on for refresh-on-reselect. A
// failed join leaves the previous room membership untouched.
func (rr *RoomRouter) JoinChannel(ctx context.Context, conn *Connection, channelID string) (string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", validationErr("channel id cannot be empty")
	}

	channel, err := rr.store.FindChannelByID(ctx, channelID)
	if err != nil {
		return "", persistErr(err, "channel")
	}
	if err := rr.authorize(ctx, conn, channel); err != nil {
		return "", err
	}

	previous := conn.CurrentChannel()
	now := time.Now()

	if previous == channel.ID {
		rr.deliverHistory(ctx, conn, channel.ID)
		rr.transport.Emit(conn.ID, models.EventChannelJoined, &models.ChannelJoined{
			Channel:         channel.ID,
			PreviousChannel: previous,
			Timestamp:       now,
			Message:         fmt.Sprintf("Successfully joined channel #%s", channel.Name),
		})
		return previous, nil
	}

	if previous != "" {
		rr.transport.Leave(conn.ID, previous)
		rr.transport.EmitRoom(previous, models.EventUserChannelLeft, &models.UserChannelLeft{
			Username:   conn.Username,
			UserID:     conn.UserID,
			Channel:    previous,
			NewChannel: channel.ID,
			Timestamp:  now,
		}, conn.ID)
	}

	rr.enter(ctx, conn, channel.ID)

	rr.transport.Emit(conn.ID, models.EventChannelJoined, &models.ChannelJoined{
		Channel:         channel.ID,
		PreviousChannel: previous,
		Timestamp:       now,
		Message:         fmt.Sprintf("Successfully joined channel #%s", channel.Name),
	})
	rr.transport.EmitRoom(channel.ID, models.EventUserChannelJoined, &models.UserChannelJoined{
		Username:        conn.Username,
		UserID:          conn.UserID,
		Channel:         channel.ID,
		PreviousChannel: previous,
		Timestamp:       now,
	}, conn.ID)

	logger.Info("User switched channel",
		logger.String("user_id", conn.UserID),
		logger.String("channel", channel.ID),
		logger.String("previous", previous),
	)

	return previous, nil
}

// JoinDM subscribes the connection to the DM room shared with another user.
// Idempotent if already joined.
func (rr *RoomRouter) JoinDM(conn *Connection, otherUserID string) (string, error) {
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		return "", validationErr("other user id is required for joining DM")
	}

	room := DMRoomID(conn.UserID, otherUserID)
	if conn.CurrentDMRoom() != room {
		if prev := conn.CurrentDMRoom(); prev != "" {
			rr.transport.Leave(conn.ID, prev)
		}
		rr.transport.Join(conn.ID, room)
		conn.setCurrentDMRoom(room)
	}

	rr.transport.Emit(conn.ID, models.EventDMJoined, &models.DMJoined{
		OtherUserID: otherUserID,
		DMRoom:      room,
		Timestamp:   time.Now(),
	})

	return room, nil
}

// LeaveAll drops the connection from whatever rooms it occupies. Only the
// channel room gets a departure notice; DM presence is governed by the
// presence tracker, not room membership.
func (rr *RoomRouter) LeaveAll(conn *Connection, reason string) {
	if channel := conn.CurrentChannel(); channel != "" {
		rr.transport.Leave(conn.ID, channel)
		rr.transport.EmitRoom(channel, models.EventUserChannelLeft, &models.UserChannelLeft{
			Username:  conn.Username,
			UserID:    conn.UserID,
			Channel:   channel,
			Timestamp: time.Now(),
			Reason:    reason,
		}, conn.ID)
		conn.setCurrentChannel("")
	}
	if room := conn.CurrentDMRoom(); room != "" {
		rr.transport.Leave(conn.ID, room)
		conn.setCurrentDMRoom("")
	}
}

// authorize gates private channels on membership. Public channels are open
// to everyone.
func (rr *RoomRouter) authorize(ctx context.Context, conn *Connection, channel *models.Channel) error {
	if !channel.IsPrivate {
		return nil
	}
	member, err := rr.store.FindChannelMembership(ctx, conn.UserID, channel.ID)
	if err != nil {
		return persistErr(err, "channel membership")
	}
	if !member {
		return forbiddenErr("you are not a member of this channel")
	}
	return nil
}

func (rr *RoomRouter) enter(ctx context.Context, conn *Connection, channelID string) {
	rr.transport.Join(conn.ID, channelID)
	conn.setCurrentChannel(channelID)
	rr.deliverHistory(ctx, conn, channelID)
}

// deliverHistory sends the bounded channel history to the joining connection
// only. A failed fetch is logged and the join proceeds without history.
func (rr *RoomRouter) deliverHistory(ctx context.Context, conn *Connection, channelID string) {
	messages, err := rr.store.ListChannelMessages(ctx, channelID, rr.historyLimit)
	if err != nil {
		logger.Error("Failed to fetch message history",
			logger.ErrorField(err),
			logger.String("channel", channelID),
		)
		return
	}

	formatted := make([]models.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		formatted = append(formatted, formatChannelMessage(msg, channelID))
	}

	rr.transport.Emit(conn.ID, models.EventMessageHistory, &models.MessageHistory{
		Channel:   channelID,
		Messages:  formatted,
		Timestamp: time.Now(),
	})
}

func formatChannelMessage(msg *models.Message, channelID string) models.ChatMessage {
	out := models.ChatMessage{
		ID:          msg.ID,
		Text:        msg.Content,
		Username:    msg.Username,
		UserID:      msg.UserID,
		Channel:     channelID,
		Timestamp:   msg.CreatedAt,
		MessageType: "text",
		IsDeleted:   msg.IsDeleted,
	}
	if msg.MentionedUserID != nil {
		out.MentionedUser = &models.MentionedUser{
			ID:       *msg.MentionedUserID,
			Username: msg.MentionedUsername,
		}
	}
	return out
}
