package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
)

// fakeTransport records every emission so tests can assert on delivery
// targets and payloads.
type emission struct {
	scope  string // "conn", "room" or "all"
	target string
	event  string
	data   interface{}
	except []string
}

type fakeTransport struct {
	mu        sync.Mutex
	emissions []emission
	rooms     map[string]map[string]bool
	closed    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{rooms: make(map[string]map[string]bool)}
}

func (t *fakeTransport) Emit(connID string, event string, data interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emissions = append(t.emissions, emission{scope: "conn", target: connID, event: event, data: data})
}

func (t *fakeTransport) EmitRoom(room string, event string, data interface{}, except ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emissions = append(t.emissions, emission{scope: "room", target: room, event: event, data: data, except: except})
}

func (t *fakeTransport) EmitAll(event string, data interface{}, except ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emissions = append(t.emissions, emission{scope: "all", event: event, data: data, except: except})
}

func (t *fakeTransport) Join(connID, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rooms[room] == nil {
		t.rooms[room] = make(map[string]bool)
	}
	t.rooms[room][connID] = true
}

func (t *fakeTransport) Leave(connID, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms[room], connID)
}

func (t *fakeTransport) Close(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = append(t.closed, connID)
}

func (t *fakeTransport) inRoom(connID, room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rooms[room][connID]
}

// eventsTo returns the events emitted directly to a connection, in order.
func (t *fakeTransport) eventsTo(connID string) []emission {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []emission
	for _, e := range t.emissions {
		if e.scope == "conn" && e.target == connID {
			out = append(out, e)
		}
	}
	return out
}

// eventsToRoom returns the room-scoped events for a room, in order.
func (t *fakeTransport) eventsToRoom(room string) []emission {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []emission
	for _, e := range t.emissions {
		if e.scope == "room" && e.target == room {
			out = append(out, e)
		}
	}
	return out
}

func (t *fakeTransport) lastTo(connID, event string) (emission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.emissions) - 1; i >= 0; i-- {
		e := t.emissions[i]
		if e.scope == "conn" && e.target == connID && e.event == event {
			return e, true
		}
	}
	return emission{}, false
}

func (t *fakeTransport) broadcasts(event string) []emission {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []emission
	for _, e := range t.emissions {
		if e.scope == "all" && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emissions = nil
}

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	channels map[string]*models.Channel
	members  map[string][]string
	messages map[string]*models.Message
	byChan   map[string][]*models.Message
	dms      map[string]*models.DirectMessage
	dmOrder  []*models.DirectMessage
	reads    map[string]string
	seq      int
}

var _ database.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*models.User),
		channels: make(map[string]*models.Channel),
		members:  make(map[string][]string),
		messages: make(map[string]*models.Message),
		byChan:   make(map[string][]*models.Message),
		dms:      make(map[string]*models.DirectMessage),
		reads:    make(map[string]string),
	}
}

func (s *fakeStore) addUser(id, username string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: id, Username: username, Email: username + "@example.com", Status: models.StatusOffline, CreatedAt: time.Now()}
	s.users[id] = u
	return u
}

func (s *fakeStore) addChannel(id, name string, private bool, memberIDs ...string) *models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := &models.Channel{ID: id, Name: name, IsPrivate: private, CreatedAt: time.Now()}
	s.channels[id] = ch
	s.members[id] = memberIDs
	return ch
}

func (s *fakeStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%d", s.seq)
}

func (s *fakeStore) CreateUser(ctx context.Context, req *models.RegisterRequest, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: s.nextID(), Username: req.Username, Email: req.Email, PasswordHash: passwordHash, Status: models.StatusOffline, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) UpdateUserStatus(ctx context.Context, userID string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.Status = status
	return nil
}

func (s *fakeStore) SetUserOnline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.Status = models.StatusOnline
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (s *fakeStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeStore) FindChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[id]; ok {
		return ch, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) ListChannelsForUser(ctx context.Context, userID string) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Channel
	for id, ch := range s.channels {
		for _, m := range s.members[id] {
			if m == userID {
				out = append(out, ch)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindChannelMembership(ctx context.Context, userID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[channelID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetChannelMemberIDs(ctx context.Context, channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members[channelID]...), nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, channelID, userID, content string, mentionedUserID *string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := &models.Message{
		ID:              s.nextID(),
		ChannelID:       channelID,
		UserID:          userID,
		Content:         content,
		MentionedUserID: mentionedUserID,
		CreatedAt:       time.Now(),
	}
	if u, ok := s.users[userID]; ok {
		msg.Username = u.Username
	}
	if mentionedUserID != nil {
		if u, ok := s.users[*mentionedUserID]; ok {
			msg.MentionedUsername = u.Username
		}
	}
	s.messages[msg.ID] = msg
	s.byChan[channelID] = append(s.byChan[channelID], msg)
	return msg, nil
}

func (s *fakeStore) FindMessageByID(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		return msg, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SoftDeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	msg.IsDeleted = true
	msg.DeletedAt = &now
	return nil
}

func (s *fakeStore) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.byChan[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]*models.Message(nil), msgs...), nil
}

func (s *fakeStore) CreateDirectMessage(ctx context.Context, senderID, receiverID, content string) (*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dm := &models.DirectMessage{
		ID:         s.nextID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if u, ok := s.users[senderID]; ok {
		dm.SenderUsername = u.Username
	}
	if u, ok := s.users[receiverID]; ok {
		dm.ReceiverUsername = u.Username
	}
	s.dms[dm.ID] = dm
	s.dmOrder = append(s.dmOrder, dm)
	return dm, nil
}

func (s *fakeStore) FindDirectMessageByID(ctx context.Context, id string) (*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dm, ok := s.dms[id]; ok {
		return dm, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SoftDeleteDirectMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dm, ok := s.dms[id]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	dm.IsDeleted = true
	dm.DeletedAt = &now
	return nil
}

func (s *fakeStore) ListDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DirectMessage
	for _, dm := range s.dmOrder {
		if (dm.SenderID == userA && dm.ReceiverID == userB) || (dm.SenderID == userB && dm.ReceiverID == userA) {
			out = append(out, dm)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) MarkDMRead(ctx context.Context, userID, otherUserID, lastReadDMID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[userID+"/"+otherUserID] = lastReadDMID
	return nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                   { return nil }
