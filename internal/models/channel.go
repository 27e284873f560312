package models

import "time"

type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
}

type Message struct {
	ID                string     `json:"id"`
	ChannelID         string     `json:"channel_id"`
	UserID            string     `json:"user_id"`
	Username          string     `json:"username,omitempty"`
	Content           string     `json:"content"`
	MentionedUserID   *string    `json:"mentioned_user_id,omitempty"`
	MentionedUsername string     `json:"mentioned_username,omitempty"`
	IsDeleted         bool       `json:"is_deleted"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type DirectMessage struct {
	ID               string     `json:"id"`
	SenderID         string     `json:"sender_id"`
	SenderUsername   string     `json:"sender_username,omitempty"`
	ReceiverID       string     `json:"receiver_id"`
	ReceiverUsername string     `json:"receiver_username,omitempty"`
	Content          string     `json:"content"`
	IsDeleted        bool       `json:"is_deleted"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
