package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-server/internal/metrics"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// EventKind enumerates every inbound event the server understands. The
// dispatcher switches exhaustively over this set, so adding an event is a
// compile-visible extension rather than a string registration.
type EventKind string

const (
	EventUserJoin      EventKind = "user_join"
	EventJoinChannel   EventKind = "join_channel"
	EventJoinDM        EventKind = "join_dm_room"
	EventSendMessage   EventKind = "send_message"
	EventSendDM        EventKind = "send_direct_message"
	EventDeleteMessage EventKind = "delete_message"
	EventDeleteDM      EventKind = "delete_direct_message"
	EventDMHistoryReq  EventKind = "get_direct_message_history"
	EventTypingStart   EventKind = "typing_start"
	EventTypingStop    EventKind = "typing_stop"
	EventStatusUpdate  EventKind = "status_update"
)

// ParseEventKind matches a wire event name against the closed set.
func ParseEventKind(s string) (EventKind, bool) {
	switch k := EventKind(s); k {
	case EventUserJoin, EventJoinChannel, EventJoinDM,
		EventSendMessage, EventSendDM,
		EventDeleteMessage, EventDeleteDM, EventDMHistoryReq,
		EventTypingStart, EventTypingStop, EventStatusUpdate:
		return k, true
	}
	return "", false
}

// InboundEvent is a decoded wire frame awaiting dispatch.
type InboundEvent struct {
	Kind EventKind
	Data json.RawMessage
}

type userJoinPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Channel  string `json:"channel"`
}

type channelPayload struct {
	Channel string `json:"channel"`
}

type dmRoomPayload struct {
	OtherUserID string `json:"otherUserId"`
}

type sendMessagePayload struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type sendDMPayload struct {
	ReceiverUserID string `json:"receiverUserId"`
	Text           string `json:"text"`
}

type deletePayload struct {
	MessageID string `json:"messageId"`
}

type typingPayload struct {
	MessageType string `json:"messageType"`
	TargetID    string `json:"targetId"`
}

type dmHistoryPayload struct {
	OtherUserID string `json:"otherUserId"`
	Limit       int    `json:"limit"`
}

// Dispatcher binds inbound events to the core components: validate payload,
// resolve the acting connection, delegate, and report any domain error back
// to the originating connection only. It also owns the connect/disconnect
// lifecycle.
type Dispatcher struct {
	registry       *Registry
	rooms          *RoomRouter
	presence       *PresenceTracker
	typing         *TypingTracker
	messages       *MessageRouter
	transport      Transport
	persistTimeout time.Duration
}

func NewDispatcher(
	registry *Registry,
	rooms *RoomRouter,
	presence *PresenceTracker,
	typing *TypingTracker,
	messages *MessageRouter,
	transport Transport,
	persistTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		rooms:          rooms,
		presence:       presence,
		typing:         typing,
		messages:       messages,
		transport:      transport,
		persistTimeout: persistTimeout,
	}
}

// Dispatch handles one inbound event to completion. Domain errors never
// propagate out of here; they are converted into a scoped error event.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, ev InboundEvent) {
	metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	if err := d.dispatch(ctx, connID, ev); err != nil {
		d.reportError(connID, ev.Kind, err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, connID string, ev InboundEvent) error {
	if ev.Kind == EventUserJoin {
		return d.handleUserJoin(ctx, connID, ev.Data)
	}

	conn, ok := d.registry.Lookup(connID)
	if !ok {
		// Stale events can race a disconnect; never act on them.
		return notRecognizedErr()
	}

	switch ev.Kind {
	case EventJoinChannel:
		var p channelPayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		_, err := d.rooms.JoinChannel(ctx, conn, p.Channel)
		return err

	case EventJoinDM:
		var p dmRoomPayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		_, err := d.rooms.JoinDM(conn, p.OtherUserID)
		return err

	case EventSendMessage:
		var p sendMessagePayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		if err := d.messages.SendChannelMessage(ctx, conn, p.Channel, p.Text); err != nil {
			return err
		}
		metrics.MessagesRoutedTotal.WithLabelValues("channel").Inc()
		return nil

	case EventSendDM:
		var p sendDMPayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		if err := d.messages.SendDirectMessage(ctx, conn, p.ReceiverUserID, p.Text); err != nil {
			return err
		}
		metrics.MessagesRoutedTotal.WithLabelValues("direct_message").Inc()
		return nil

	case EventDeleteMessage:
		var p deletePayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		return d.messages.DeleteMessage(ctx, conn, p.MessageID)

	case EventDeleteDM:
		var p deletePayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		return d.messages.DeleteDirectMessage(ctx, conn, p.MessageID)

	case EventDMHistoryReq:
		var p dmHistoryPayload
		if err := decode(ev.Data, &p); err != nil {
			return err
		}
		return d.messages.DirectMessageHistory(ctx, conn, p.OtherUserID, p.Limit)

	case EventTypingStart:
		p, err := decodeTyping(ev.Data)
		if err != nil {
			return err
		}
		return d.typing.Start(conn, p.messageType, p.targetID)

	case EventTypingStop:
		p, err := decodeTyping(ev.Data)
		if err != nil {
			return err
		}
		return d.typing.Stop(conn, p.messageType, p.targetID)

	case EventStatusUpdate:
		status, err := decodeStatus(ev.Data)
		if err != nil {
			return err
		}
		return d.presence.SetStatus(ctx, conn, status)

	case EventUserJoin:
		// Handled above; kept for switch exhaustiveness.
		return nil
	}

	return validationErr("unknown event")
}

// handleUserJoin runs the join handshake: evict any stale session, validate
// the payload and channel, mark the user online, place them in the room, and
// send history plus the presence list. Eviction always happens before
// anything that can fail.
func (d *Dispatcher) handleUserJoin(ctx context.Context, connID string, data json.RawMessage) error {
	var p userJoinPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if err := validateJoin(&p); err != nil {
		return err
	}

	conn := d.registry.Register(connID, p.UserID, p.Username)

	channel, err := d.rooms.JoinInitial(ctx, conn, p.Channel)
	if err != nil {
		d.registry.Unregister(connID)
		return err
	}

	if err := d.presence.SetOnline(ctx, conn); err != nil {
		d.transport.Leave(connID, channel.ID)
		d.registry.Unregister(connID)
		return err
	}

	d.presence.BroadcastUsers()

	d.transport.Emit(connID, models.EventUserJoined, &models.UserJoined{
		User: models.JoinedUser{
			Username:       conn.Username,
			UserID:         conn.UserID,
			CurrentChannel: channel.ID,
		},
		Message:   fmt.Sprintf("Successfully joined channel #%s", channel.Name),
		Timestamp: conn.JoinedAt,
	})

	logger.Info("User joined",
		logger.String("user_id", conn.UserID),
		logger.String("username", conn.Username),
		logger.String("channel", channel.ID),
	)

	return nil
}

// HandleDisconnect runs the full cleanup path. Every step is attempted even
// when an earlier one fails; sub-errors are logged, never propagated.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, connID string) {
	conn, ok := d.registry.Lookup(connID)
	if !ok {
		logger.Debug("Disconnect for unknown connection", logger.String("connection_id", connID))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	defer cancel()

	d.typing.CleanupDisconnect(conn)
	d.rooms.LeaveAll(conn, "disconnected")

	if err := d.presence.SetOffline(ctx, conn.UserID); err != nil {
		logger.Error("Failed to persist offline status",
			logger.ErrorField(err),
			logger.String("user_id", conn.UserID),
		)
	}

	d.registry.Unregister(connID)

	remaining := d.registry.ListActive()
	d.transport.EmitAll(models.EventUsersList, remaining)
	d.transport.EmitAll(models.EventUserDisconnected, &models.UserDisconnected{
		Username:         conn.Username,
		UserID:           conn.UserID,
		Timestamp:        time.Now(),
		ActiveUsersCount: len(remaining),
	})

	logger.Info("User disconnected",
		logger.String("user_id", conn.UserID),
		logger.String("username", conn.Username),
		logger.Int("active_users", len(remaining)),
	)
}

func (d *Dispatcher) reportError(connID string, kind EventKind, err error) {
	errKind := KindOf(err)
	metrics.EventErrorsTotal.WithLabelValues(string(errKind)).Inc()

	var domainErr *Error
	message := "internal error"
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		logger.Warn("Event failed",
			logger.String("event", string(kind)),
			logger.String("kind", string(errKind)),
			logger.String("connection_id", connID),
			logger.ErrorField(err),
		)
	} else {
		// Anything unclassified is a programmer error; log loudly but keep
		// the process and every other connection alive.
		logger.Error("Unclassified error in event handler",
			logger.String("event", string(kind)),
			logger.String("connection_id", connID),
			logger.ErrorField(err),
		)
	}

	d.transport.Emit(connID, errorEventFor(kind), &models.ErrorPayload{
		Type:      string(kind),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// errorEventFor picks the event name clients listen on for failures of a
// given inbound event; everything without a dedicated channel uses the
// generic error event.
func errorEventFor(kind EventKind) string {
	switch kind {
	case EventUserJoin:
		return models.EventJoinErr
	case EventJoinChannel:
		return models.EventChannelJoinErr
	case EventDeleteMessage:
		return models.EventMessageDeleteErr
	case EventDeleteDM:
		return models.EventDMDeleteErr
	}
	return models.EventError
}

func validateJoin(p *userJoinPayload) error {
	p.Username = strings.TrimSpace(p.Username)
	p.Channel = strings.TrimSpace(p.Channel)

	switch {
	case p.UserID == "":
		return validationErr("user id is required")
	case p.Username == "":
		return validationErr("username is required and cannot be empty")
	case len(p.Username) > 50:
		return validationErr("username cannot exceed 50 characters")
	case p.Channel == "":
		return validationErr("channel is required and cannot be empty")
	case len(p.Channel) > 100:
		return validationErr("channel name cannot exceed 100 characters")
	}
	return nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return validationErr("event payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return validationErr("malformed event payload")
	}
	return nil
}

type decodedTyping struct {
	messageType MessageType
	targetID    string
}

func decodeTyping(data json.RawMessage) (decodedTyping, error) {
	var p typingPayload
	if err := decode(data, &p); err != nil {
		return decodedTyping{}, err
	}

	switch MessageType(p.MessageType) {
	case MessageTypeChannel, MessageTypeDirect:
		return decodedTyping{messageType: MessageType(p.MessageType), targetID: p.TargetID}, nil
	case "":
		// Older clients omit the discriminant for channel typing.
		return decodedTyping{messageType: MessageTypeChannel, targetID: p.TargetID}, nil
	}
	return decodedTyping{}, validationErr("invalid message type: %s", p.MessageType)
}

// decodeStatus accepts both a bare string payload and {"status": "..."}.
func decodeStatus(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var p struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &p); err == nil && p.Status != "" {
		return p.Status, nil
	}
	return "", validationErr("malformed status payload")
}
