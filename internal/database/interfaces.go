package database

import (
	"context"

	"chat-server/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserStatus(ctx context.Context, userID string, status models.Status) error
	// SetUserOnline marks the user ONLINE and stamps last_login_at.
	SetUserOnline(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type ChannelRepository interface {
	FindChannelByID(ctx context.Context, id string) (*models.Channel, error)
	ListChannelsForUser(ctx context.Context, userID string) ([]*models.Channel, error)
	FindChannelMembership(ctx context.Context, userID, channelID string) (bool, error)
	GetChannelMemberIDs(ctx context.Context, channelID string) ([]string, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, channelID, userID, content string, mentionedUserID *string) (*models.Message, error)
	FindMessageByID(ctx context.Context, id string) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, id string) error
	ListChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error)
}

type DirectMessageRepository interface {
	CreateDirectMessage(ctx context.Context, senderID, receiverID, content string) (*models.DirectMessage, error)
	FindDirectMessageByID(ctx context.Context, id string) (*models.DirectMessage, error)
	SoftDeleteDirectMessage(ctx context.Context, id string) error
	ListDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*models.DirectMessage, error)
	// MarkDMRead records the last read message pointer for userID in the
	// conversation with otherUserID.
	MarkDMRead(ctx context.Context, userID, otherUserID, lastReadDMID string) error
}

type Store interface {
	UserRepository
	ChannelRepository
	MessageRepository
	DirectMessageRepository
	Ping(ctx context.Context) error
	Close() error
}
