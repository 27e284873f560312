package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

const (
	maxMessageLength = 2000
	previewLength    = 50
)

var mentionRe = regexp.MustCompile(`@(\w+)`)

// MessageRouter validates, persists and fans out chat and direct messages
// plus the notifications derived from them.
type MessageRouter struct {
	store        database.Store
	transport    Transport
	registry     *Registry
	historyLimit int
}

func NewMessageRouter(store database.Store, transport Transport, registry *Registry, historyLimit int) *MessageRouter {
	return &MessageRouter{
		store:        store,
		transport:    transport,
		registry:     registry,
		historyLimit: historyLimit,
	}
}

// Limits are in characters, not bytes, so multibyte text gets the full
// budget.
func validateMessageText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", validationErr("message text cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return "", validationErr("message too long, maximum length is %d characters", maxMessageLength)
	}
	return text, nil
}

// preview truncates on a rune boundary so the notification text stays valid
// UTF-8.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "..."
}

// SendChannelMessage persists a channel message and fans it out: the room
// gets receive_message, the sender gets a delivery echo, a resolved mention
// gets a mention notification wherever they are, and connected channel
// members viewing another channel get a preview notification. Offline
// members receive nothing.
func (m *MessageRouter) SendChannelMessage(ctx context.Context, conn *Connection, channelID, text string) error {
	text, err := validateMessageText(text)
	if err != nil {
		return err
	}

	if channelID == "" {
		channelID = conn.CurrentChannel()
	}
	if channelID == "" {
		return validationErr("no channel specified and user has no current channel")
	}

	channel, err := m.store.FindChannelByID(ctx, channelID)
	if err != nil {
		return persistErr(err, "channel")
	}

	memberIDs, err := m.store.GetChannelMemberIDs(ctx, channel.ID)
	if err != nil {
		return persistErr(err, "channel members")
	}

	mentioned := m.resolveMention(ctx, text)

	var mentionedID *string
	if mentioned != nil {
		mentionedID = &mentioned.ID
	}
	msg, err := m.store.CreateMessage(ctx, channel.ID, conn.UserID, text, mentionedID)
	if err != nil {
		return persistErr(err, "message")
	}

	payload := models.ChatMessage{
		ID:          msg.ID,
		Text:        text,
		Username:    conn.Username,
		UserID:      conn.UserID,
		Channel:     channel.ID,
		ChannelName: channel.Name,
		Timestamp:   msg.CreatedAt,
		MessageType: "text",
	}
	if mentioned != nil {
		payload.MentionedUser = &models.MentionedUser{ID: mentioned.ID, Username: mentioned.Username}
	}

	m.transport.EmitRoom(channel.ID, models.EventReceiveMessage, &payload, conn.ID)
	m.transport.Emit(conn.ID, models.EventMessageSent, &models.MessageSent{
		ChatMessage: payload,
		Status:      "delivered",
		DeliveredAt: time.Now(),
	})

	if mentioned != nil && mentioned.ID != conn.UserID {
		if target, ok := m.registry.LookupUser(mentioned.ID); ok {
			m.transport.Emit(target.ID, models.EventMentionNotify, &models.Notification{
				Title:            fmt.Sprintf("You were mentioned in #%s", channel.Name),
				Message:          fmt.Sprintf("%s: %s", conn.Username, text),
				Channel:          channel.ID,
				ChannelName:      channel.Name,
				MessageID:        msg.ID,
				Username:         conn.Username,
				UserID:           conn.UserID,
				Timestamp:        msg.CreatedAt,
				NotificationType: "mention",
			})
		}
	}

	m.notifyOtherChannels(conn, channel, msg.ID, text, memberIDs)

	logger.Debug("Routed channel message",
		logger.String("channel", channel.ID),
		logger.String("user_id", conn.UserID),
		logger.String("message_id", msg.ID),
	)

	return nil
}

// notifyOtherChannels sends a truncated preview to every connected channel
// member who is neither the sender nor currently viewing the channel.
func (m *MessageRouter) notifyOtherChannels(conn *Connection, channel *models.Channel, messageID, text string, memberIDs []string) {
	notice := &models.Notification{
		Title:            fmt.Sprintf("New message in #%s", channel.Name),
		Message:          fmt.Sprintf("%s: %s", conn.Username, preview(text)),
		Channel:          channel.ID,
		ChannelName:      channel.Name,
		MessageID:        messageID,
		Username:         conn.Username,
		UserID:           conn.UserID,
		Timestamp:        time.Now(),
		NotificationType: "channel_message",
	}

	for _, memberID := range memberIDs {
		if memberID == conn.UserID {
			continue
		}
		member, ok := m.registry.LookupUser(memberID)
		if !ok || member.CurrentChannel() == channel.ID {
			continue
		}
		m.transport.Emit(member.ID, models.EventMessageNotify, notice)
	}
}

// resolveMention finds the first @username token and resolves it to a user.
// Unresolved mentions are silently ignored.
func (m *MessageRouter) resolveMention(ctx context.Context, text string) *models.User {
	match := mentionRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	user, err := m.store.FindUserByUsername(ctx, match[1])
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Warn("Mention lookup failed",
				logger.ErrorField(err),
				logger.String("username", match[1]),
			)
		}
		return nil
	}
	return user
}

// SendDirectMessage persists a DM and delivers it to the receiver's
// connection when online. An offline receiver still gets the durable copy
// for a later history fetch.
func (m *MessageRouter) SendDirectMessage(ctx context.Context, conn *Connection, receiverUserID, text string) error {
	if receiverUserID == "" {
		return validationErr("receiver user id is required")
	}
	text, err := validateMessageText(text)
	if err != nil {
		return err
	}

	receiver, err := m.store.FindUserByID(ctx, receiverUserID)
	if err != nil {
		return persistErr(err, "receiver")
	}

	dm, err := m.store.CreateDirectMessage(ctx, conn.UserID, receiver.ID, text)
	if err != nil {
		return persistErr(err, "direct message")
	}

	payload := models.DirectMessagePayload{
		ID:               dm.ID,
		Text:             text,
		Username:         conn.Username,
		UserID:           conn.UserID,
		ReceiverUserID:   receiver.ID,
		ReceiverUsername: receiver.Username,
		Timestamp:        dm.CreatedAt,
		MessageType:      "direct_message",
	}

	if target, ok := m.registry.LookupUser(receiver.ID); ok {
		m.transport.Emit(target.ID, models.EventReceiveDM, &payload)
		m.transport.Emit(target.ID, models.EventDMNotify, &models.DMNotification{
			Title:            fmt.Sprintf("New message from %s", conn.Username),
			Message:          preview(text),
			SenderID:         conn.UserID,
			SenderUsername:   conn.Username,
			Timestamp:        time.Now(),
			NotificationType: "direct_message",
		})
	}

	m.transport.Emit(conn.ID, models.EventDMSent, &models.DirectMessageSent{
		DirectMessagePayload: payload,
		Status:               "delivered",
		DeliveredAt:          time.Now(),
	})

	return nil
}

// DeleteMessage soft-deletes a channel message the requester authored and
// broadcasts the deletion to the channel room, requester included. Re-running
// a delete reports alreadyDeleted instead of erroring.
func (m *MessageRouter) DeleteMessage(ctx context.Context, conn *Connection, messageID string) error {
	if messageID == "" {
		return validationErr("message id is required")
	}

	msg, err := m.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return persistErr(err, "message")
	}
	if msg.UserID != conn.UserID {
		return forbiddenErr("you can only delete your own messages")
	}

	resp := &models.MessageDeleted{
		MessageID: messageID,
		ChannelID: msg.ChannelID,
		DeletedBy: conn.Username,
		Timestamp: time.Now(),
	}

	if msg.IsDeleted {
		resp.AlreadyDeleted = true
	} else if err := m.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return persistErr(err, "message delete")
	}

	m.transport.EmitRoom(msg.ChannelID, models.EventMessageDeleted, resp, conn.ID)
	m.transport.Emit(conn.ID, models.EventMessageDeleted, resp)
	m.transport.Emit(conn.ID, models.EventMessageDeleteOK, resp)

	return nil
}

// DeleteDirectMessage mirrors DeleteMessage for DMs; the deletion event goes
// to the participants' DM room.
func (m *MessageRouter) DeleteDirectMessage(ctx context.Context, conn *Connection, messageID string) error {
	if messageID == "" {
		return validationErr("message id is required")
	}

	dm, err := m.store.FindDirectMessageByID(ctx, messageID)
	if err != nil {
		return persistErr(err, "direct message")
	}
	if dm.SenderID != conn.UserID {
		return forbiddenErr("you can only delete your own direct messages")
	}

	resp := &models.DirectMessageDeleted{
		MessageID:   messageID,
		SenderID:    dm.SenderID,
		ReceiverID:  dm.ReceiverID,
		DeletedBy:   conn.Username,
		Timestamp:   time.Now(),
		MessageType: "direct_message",
	}

	if dm.IsDeleted {
		resp.AlreadyDeleted = true
	} else if err := m.store.SoftDeleteDirectMessage(ctx, messageID); err != nil {
		return persistErr(err, "direct message delete")
	}

	room := DMRoomID(dm.SenderID, dm.ReceiverID)
	m.transport.EmitRoom(room, models.EventDMDeleted, resp, conn.ID)
	m.transport.Emit(conn.ID, models.EventDMDeleted, resp)
	m.transport.Emit(conn.ID, models.EventDMDeleteOK, resp)

	return nil
}

// DirectMessageHistory delivers the bounded conversation history with
// another user to the requesting connection and advances the requester's
// last-read pointer.
func (m *MessageRouter) DirectMessageHistory(ctx context.Context, conn *Connection, otherUserID string, limit int) error {
	if otherUserID == "" {
		return validationErr("other user id is required")
	}
	if limit <= 0 || limit > m.historyLimit {
		limit = m.historyLimit
	}

	messages, err := m.store.ListDirectMessages(ctx, conn.UserID, otherUserID, limit)
	if err != nil {
		return persistErr(err, "direct message history")
	}

	formatted := make([]models.DirectMessagePayload, 0, len(messages))
	for _, dm := range messages {
		formatted = append(formatted, models.DirectMessagePayload{
			ID:               dm.ID,
			Text:             dm.Content,
			Username:         dm.SenderUsername,
			UserID:           dm.SenderID,
			ReceiverUserID:   dm.ReceiverID,
			ReceiverUsername: dm.ReceiverUsername,
			Timestamp:        dm.CreatedAt,
			MessageType:      "direct_message",
			IsDeleted:        dm.IsDeleted,
		})
	}

	if len(messages) > 0 {
		last := messages[len(messages)-1]
		if err := m.store.MarkDMRead(ctx, conn.UserID, otherUserID, last.ID); err != nil {
			logger.Warn("Failed to advance DM read pointer",
				logger.ErrorField(err),
				logger.String("user_id", conn.UserID),
			)
		}
	}

	m.transport.Emit(conn.ID, models.EventDMHistory, &models.DirectMessageHistory{
		OtherUserID: otherUserID,
		Messages:    formatted,
	})

	return nil
}
