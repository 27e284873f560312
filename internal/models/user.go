package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is a user's broadcast-visible availability state. A user can be
// connected yet AWAY or BUSY; OFFLINE is the terminal state until next join.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ParseStatus matches the canonical status set case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOnline:
		return StatusOnline, nil
	case StatusAway:
		return StatusAway, nil
	case StatusBusy:
		return StatusBusy, nil
	case StatusOffline:
		return StatusOffline, nil
	}
	return "", fmt.Errorf("invalid status: %s", s)
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Status       Status     `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ActiveUser is the presence summary broadcast in users_list payloads.
type ActiveUser struct {
	ID             string    `json:"id"` // connection id
	Username       string    `json:"username"`
	UserID         string    `json:"userId"`
	Status         Status    `json:"status"`
	CurrentChannel string    `json:"currentChannel,omitempty"`
	JoinedAt       time.Time `json:"joinedAt"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
