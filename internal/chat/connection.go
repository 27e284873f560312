package chat

import (
	"sync"
	"time"

	"chat-server/internal/models"
)

// MessageType discriminates the two room flavors an event can target.
type MessageType string

const (
	MessageTypeChannel MessageType = "channel"
	MessageTypeDirect  MessageType = "direct_message"
)

// TypingSlot is the ephemeral typing flag for one room flavor.
type TypingSlot struct {
	Room      string
	Active    bool
	StartedAt time.Time
}

// Connection is one live session. The registry owns its lifetime; room and
// typing fields are mutated only through RoomRouter and TypingTracker. The
// mutex guards reads from presence broadcasts racing event handlers on other
// connections' goroutines.
type Connection struct {
	ID       string
	UserID   string
	Username string
	JoinedAt time.Time

	mu             sync.Mutex
	status         models.Status
	currentChannel string
	currentDMRoom  string
	channelTyping  TypingSlot
	dmTyping       TypingSlot
}

func (c *Connection) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) setStatus(s models.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Connection) CurrentChannel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentChannel
}

func (c *Connection) setCurrentChannel(channelID string) {
	c.mu.Lock()
	c.currentChannel = channelID
	c.mu.Unlock()
}

func (c *Connection) CurrentDMRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentDMRoom
}

func (c *Connection) setCurrentDMRoom(room string) {
	c.mu.Lock()
	c.currentDMRoom = room
	c.mu.Unlock()
}

func (c *Connection) typingSlot(mt MessageType) TypingSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mt == MessageTypeDirect {
		return c.dmTyping
	}
	return c.channelTyping
}

func (c *Connection) setTypingSlot(mt MessageType, slot TypingSlot) {
	c.mu.Lock()
	if mt == MessageTypeDirect {
		c.dmTyping = slot
	} else {
		c.channelTyping = slot
	}
	c.mu.Unlock()
}

// Summary renders the presence view of this connection for users_list
// broadcasts.
func (c *Connection) Summary() *models.ActiveUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &models.ActiveUser{
		ID:             c.ID,
		Username:       c.Username,
		UserID:         c.UserID,
		Status:         c.status,
		CurrentChannel: c.currentChannel,
		JoinedAt:       c.JoinedAt,
	}
}
