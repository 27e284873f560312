package database

import (
	"context"
	"errors"
	"fmt"

	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row is absent. Callers map it onto their
// own error taxonomy.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database")
	return &PostgresStore{pool: pool}, nil
}

func (db *PostgresStore) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresStore) Close() error {
	db.pool.Close()
	return nil
}

func mapRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User repository

func (db *PostgresStore) CreateUser(ctx context.Context, req *models.RegisterRequest, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, username, email, status, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), req.Username, req.Email, passwordHash, models.StatusOffline).Scan(
		&user.ID, &user.Username, &user.Email, &user.Status, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, status, last_login_at, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Status, &user.LastLoginAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return user, nil
}

func (db *PostgresStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, status, last_login_at, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.Status, &user.LastLoginAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return user, nil
}

func (db *PostgresStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, email, status, last_login_at, created_at FROM users WHERE username = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Email, &user.Status, &user.LastLoginAt, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return user, nil
}

func (db *PostgresStore) UpdateUserStatus(ctx context.Context, userID string, status models.Status) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, userID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresStore) SetUserOnline(ctx context.Context, userID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET status = $2, last_login_at = NOW() WHERE id = $1`,
		userID, models.StatusOnline)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, username, email, status, last_login_at, created_at FROM users ORDER BY username`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Status, &user.LastLoginAt, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Channel repository

func (db *PostgresStore) FindChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	query := `SELECT id, name, description, is_private, created_at FROM channels WHERE id = $1`

	channel := &models.Channel{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&channel.ID, &channel.Name, &channel.Description, &channel.IsPrivate, &channel.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return channel, nil
}

func (db *PostgresStore) ListChannelsForUser(ctx context.Context, userID string) ([]*models.Channel, error) {
	query := `
		SELECT c.id, c.name, c.description, c.is_private, c.created_at
		FROM channels c
		LEFT JOIN channel_members m ON c.id = m.channel_id AND m.user_id = $1
		WHERE c.is_private = false OR m.user_id IS NOT NULL
		ORDER BY c.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		channel := &models.Channel{}
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.Description, &channel.IsPrivate, &channel.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}

	return channels, rows.Err()
}

func (db *PostgresStore) FindChannelMembership(ctx context.Context, userID, channelID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM channel_members WHERE user_id = $1 AND channel_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, channelID).Scan(&exists)
	return exists, err
}

func (db *PostgresStore) GetChannelMemberIDs(ctx context.Context, channelID string) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT user_id FROM channel_members WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Message repository

func (db *PostgresStore) CreateMessage(ctx context.Context, channelID, userID, content string, mentionedUserID *string) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, channel_id, user_id, content, mentioned_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, channel_id, user_id, content, mentioned_user_id, is_deleted, created_at`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), channelID, userID, content, mentionedUserID).Scan(
		&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Content, &msg.MentionedUserID, &msg.IsDeleted, &msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

func (db *PostgresStore) FindMessageByID(ctx context.Context, id string) (*models.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.mentioned_user_id,
		       m.is_deleted, m.deleted_at, m.created_at
		FROM messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.id = $1`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content, &msg.MentionedUserID,
		&msg.IsDeleted, &msg.DeletedAt, &msg.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return msg, nil
}

func (db *PostgresStore) SoftDeleteMessage(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = true, deleted_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresStore) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.mentioned_user_id,
		       mu.username, m.is_deleted, m.deleted_at, m.created_at
		FROM messages m
		JOIN users u ON m.user_id = u.id
		LEFT JOIN users mu ON m.mentioned_user_id = mu.id
		WHERE m.channel_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var mentionedName *string
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content,
			&msg.MentionedUserID, &mentionedName, &msg.IsDeleted, &msg.DeletedAt, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if mentionedName != nil {
			msg.MentionedUsername = *mentionedName
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Direct message repository

func (db *PostgresStore) CreateDirectMessage(ctx context.Context, senderID, receiverID, content string) (*models.DirectMessage, error) {
	query := `
		INSERT INTO direct_messages (id, sender_id, receiver_id, content, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, sender_id, receiver_id, content, is_deleted, created_at`

	dm := &models.DirectMessage{}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), senderID, receiverID, content).Scan(
		&dm.ID, &dm.SenderID, &dm.ReceiverID, &dm.Content, &dm.IsDeleted, &dm.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct message: %w", err)
	}

	return dm, nil
}

func (db *PostgresStore) FindDirectMessageByID(ctx context.Context, id string) (*models.DirectMessage, error) {
	query := `
		SELECT d.id, d.sender_id, su.username, d.receiver_id, ru.username, d.content,
		       d.is_deleted, d.deleted_at, d.created_at
		FROM direct_messages d
		JOIN users su ON d.sender_id = su.id
		JOIN users ru ON d.receiver_id = ru.id
		WHERE d.id = $1`

	dm := &models.DirectMessage{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&dm.ID, &dm.SenderID, &dm.SenderUsername, &dm.ReceiverID, &dm.ReceiverUsername, &dm.Content,
		&dm.IsDeleted, &dm.DeletedAt, &dm.CreatedAt,
	)
	if err != nil {
		return nil, mapRowErr(err)
	}

	return dm, nil
}

func (db *PostgresStore) SoftDeleteDirectMessage(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE direct_messages SET is_deleted = true, deleted_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresStore) ListDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*models.DirectMessage, error) {
	query := `
		SELECT d.id, d.sender_id, su.username, d.receiver_id, ru.username, d.content,
		       d.is_deleted, d.deleted_at, d.created_at
		FROM direct_messages d
		JOIN users su ON d.sender_id = su.id
		JOIN users ru ON d.receiver_id = ru.id
		WHERE (d.sender_id = $1 AND d.receiver_id = $2)
		   OR (d.sender_id = $2 AND d.receiver_id = $1)
		ORDER BY d.created_at DESC
		LIMIT $3`

	rows, err := db.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.DirectMessage
	for rows.Next() {
		dm := &models.DirectMessage{}
		if err := rows.Scan(&dm.ID, &dm.SenderID, &dm.SenderUsername, &dm.ReceiverID, &dm.ReceiverUsername,
			&dm.Content, &dm.IsDeleted, &dm.DeletedAt, &dm.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, dm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresStore) MarkDMRead(ctx context.Context, userID, otherUserID, lastReadDMID string) error {
	query := `
		INSERT INTO user_dm_reads (user_id, other_user_id, last_read_dm_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, other_user_id) DO UPDATE SET last_read_dm_id = EXCLUDED.last_read_dm_id`

	_, err := db.pool.Exec(ctx, query, userID, otherUserID, lastReadDMID)
	return err
}
