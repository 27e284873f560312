package models

import "time"

// Outbound event names. Every payload below is wrapped in an Envelope before
// it reaches a socket.
const (
	EventUsersList         = "users_list"
	EventMessageHistory    = "message_history"
	EventReceiveMessage    = "receive_message"
	EventMessageSent       = "message_sent"
	EventMessageNotify     = "message_notification"
	EventMentionNotify     = "mention_notification"
	EventMessageDeleted    = "message_deleted"
	EventMessageDeleteOK   = "message_delete_success"
	EventMessageDeleteErr  = "message_delete_error"
	EventReceiveDM         = "receive_direct_message"
	EventDMSent            = "direct_message_sent"
	EventDMNotify          = "dm_notification"
	EventDMHistory         = "direct_message_history"
	EventDMDeleted         = "dm_deleted"
	EventDMDeleteOK        = "dm_delete_success"
	EventDMDeleteErr       = "dm_delete_error"
	EventUserTyping        = "user_typing"
	EventChannelJoined     = "channel_joined"
	EventChannelJoinErr    = "channel_join_error"
	EventUserChannelJoined = "user_channel_joined"
	EventUserChannelLeft   = "user_channel_left"
	EventUserJoined        = "user_joined"
	EventJoinErr           = "join_error"
	EventDMJoined          = "dm_joined"
	EventForceDisconnect   = "force_disconnect"
	EventUserDisconnected  = "user_disconnected"
	EventError             = "error"
)

// Envelope is the wire frame for every message in either direction:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type MentionedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChatMessage is the formatted channel message delivered to room members.
type ChatMessage struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Username      string         `json:"username"`
	UserID        string         `json:"userId"`
	Channel       string         `json:"channel"`
	ChannelName   string         `json:"channelName,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	MessageType   string         `json:"messageType"`
	Edited        bool           `json:"edited"`
	IsDeleted     bool           `json:"isDeleted"`
	MentionedUser *MentionedUser `json:"mentionedUser"`
}

// MessageSent is the delivery-confirmed echo back to the sender.
type MessageSent struct {
	ChatMessage
	Status      string    `json:"status"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type DirectMessagePayload struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	Username         string    `json:"username"`
	UserID           string    `json:"userId"`
	ReceiverUserID   string    `json:"receiverUserId"`
	ReceiverUsername string    `json:"receiverUsername"`
	Timestamp        time.Time `json:"timestamp"`
	MessageType      string    `json:"messageType"`
	IsDeleted        bool      `json:"isDeleted"`
}

type DirectMessageSent struct {
	DirectMessagePayload
	Status      string    `json:"status"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// Notification is the cross-channel alert sent to connected members who are
// not viewing the channel, and the mention alert payload.
type Notification struct {
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Channel          string    `json:"channel"`
	ChannelName      string    `json:"channelName,omitempty"`
	MessageID        string    `json:"messageId"`
	Username         string    `json:"username"`
	UserID           string    `json:"userId"`
	Timestamp        time.Time `json:"timestamp"`
	NotificationType string    `json:"notificationType"`
}

type DMNotification struct {
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	SenderID         string    `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	Timestamp        time.Time `json:"timestamp"`
	NotificationType string    `json:"notificationType"`
}

type MessageHistory struct {
	Channel   string        `json:"channel"`
	Messages  []ChatMessage `json:"messages"`
	Timestamp time.Time     `json:"timestamp"`
}

type DirectMessageHistory struct {
	OtherUserID string                 `json:"otherUserId"`
	Messages    []DirectMessagePayload `json:"messages"`
}

type TypingNotice struct {
	Username    string    `json:"username"`
	UserID      string    `json:"userId"`
	Room        string    `json:"room"`
	MessageType string    `json:"messageType"`
	IsTyping    bool      `json:"isTyping"`
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason,omitempty"`
}

type ChannelJoined struct {
	Channel         string    `json:"channel"`
	PreviousChannel string    `json:"previousChannel,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Message         string    `json:"message"`
}

type UserChannelJoined struct {
	Username        string    `json:"username"`
	UserID          string    `json:"userId"`
	Channel         string    `json:"channel"`
	PreviousChannel string    `json:"previousChannel,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type UserChannelLeft struct {
	Username   string    `json:"username"`
	UserID     string    `json:"userId"`
	Channel    string    `json:"channel"`
	NewChannel string    `json:"newChannel,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
}

type JoinedUser struct {
	Username       string `json:"username"`
	UserID         string `json:"userId"`
	CurrentChannel string `json:"currentChannel"`
}

type UserJoined struct {
	User      JoinedUser `json:"user"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

type DMJoined struct {
	OtherUserID string    `json:"otherUserId"`
	DMRoom      string    `json:"dmRoom"`
	Timestamp   time.Time `json:"timestamp"`
}

type MessageDeleted struct {
	MessageID      string    `json:"messageId"`
	ChannelID      string    `json:"channelId"`
	DeletedBy      string    `json:"deletedBy"`
	Timestamp      time.Time `json:"timestamp"`
	AlreadyDeleted bool      `json:"alreadyDeleted,omitempty"`
}

type DirectMessageDeleted struct {
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	DeletedBy      string    `json:"deletedBy"`
	Timestamp      time.Time `json:"timestamp"`
	MessageType    string    `json:"messageType"`
	AlreadyDeleted bool      `json:"alreadyDeleted,omitempty"`
}

type ForceDisconnect struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type UserDisconnected struct {
	Username         string    `json:"username"`
	UserID           string    `json:"userId"`
	Timestamp        time.Time `json:"timestamp"`
	ActiveUsersCount int       `json:"activeUsersCount"`
}

// ErrorPayload is the structured error event scoped to the originating
// connection. Type carries the inbound event name that failed.
type ErrorPayload struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
