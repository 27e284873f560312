package chat

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-server/internal/models"
)

type messageFixture struct {
	store     *fakeStore
	transport *fakeTransport
	registry  *Registry
	rooms     *RoomRouter
	messages  *MessageRouter
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	store := newFakeStore()
	transport := newFakeTransport()
	registry := NewRegistry(transport)
	return &messageFixture{
		store:     store,
		transport: transport,
		registry:  registry,
		rooms:     NewRoomRouter(store, transport, 50),
		messages:  NewMessageRouter(store, transport, registry, 50),
	}
}

func (f *messageFixture) join(t *testing.T, connID, userID, username, channel string) *Connection {
	t.Helper()
	conn := f.registry.Register(connID, userID, username)
	_, err := f.rooms.JoinInitial(context.Background(), conn, channel)
	require.NoError(t, err)
	return conn
}

func TestSendChannelMessagePersistsAndFansOut(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false, "user-1", "user-2")

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.join(t, "conn-2", "user-2", "bob", "general")
	f.transport.reset()

	require.NoError(t, f.messages.SendChannelMessage(context.Background(), alice, "general", "hello"))

	room := f.transport.eventsToRoom("general")
	require.Len(t, room, 1)
	assert.Equal(t, models.EventReceiveMessage, room[0].event)
	assert.Contains(t, room[0].except, "conn-1")
	msg := room[0].data.(*models.ChatMessage)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.Username)

	echo, ok := f.transport.lastTo("conn-1", models.EventMessageSent)
	require.True(t, ok)
	assert.Equal(t, "delivered", echo.data.(*models.MessageSent).Status)

	// Bob is viewing the channel, so no cross-channel notification.
	_, ok = f.transport.lastTo("conn-2", models.EventMessageNotify)
	assert.False(t, ok)

	stored, err := f.store.ListChannelMessages(context.Background(), "general", 50)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSendChannelMessageNotifiesMembersInOtherChannels(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addUser("user-3", "carol")
	f.store.addChannel("general", "general", false, "user-1", "user-2", "user-3")
	f.store.addChannel("random", "random", false, "user-2")

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.join(t, "conn-2", "user-2", "bob", "random")
	// carol is a member but offline: no connection registered.
	f.transport.reset()

	longText := strings.Repeat("x", 80)
	require.NoError(t, f.messages.SendChannelMessage(context.Background(), alice, "general", longText))

	e, ok := f.transport.lastTo("conn-2", models.EventMessageNotify)
	require.True(t, ok)
	notice := e.data.(*models.Notification)
	assert.Equal(t, "channel_message", notice.NotificationType)
	// Preview truncation.
	assert.Contains(t, notice.Message, "...")
	assert.Less(t, len(notice.Message), len("alice: ")+len(longText))
}

func TestSendChannelMessageMention(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false, "user-1", "user-2")
	f.store.addChannel("random", "random", false, "user-2")

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.join(t, "conn-2", "user-2", "bob", "random")
	f.transport.reset()

	require.NoError(t, f.messages.SendChannelMessage(context.Background(), alice, "general", "hey @bob look"))

	e, ok := f.transport.lastTo("conn-2", models.EventMentionNotify)
	require.True(t, ok)
	notice := e.data.(*models.Notification)
	assert.Equal(t, "mention", notice.NotificationType)

	// The mention is also attached to the routed message.
	room := f.transport.eventsToRoom("general")
	require.Len(t, room, 1)
	mentioned := room[0].data.(*models.ChatMessage).MentionedUser
	require.NotNil(t, mentioned)
	assert.Equal(t, "user-2", mentioned.ID)
}

func TestSendChannelMessageUnresolvedMentionIsIgnored(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addChannel("general", "general", false, "user-1")

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.transport.reset()

	require.NoError(t, f.messages.SendChannelMessage(context.Background(), alice, "general", "hi @nobody"))

	room := f.transport.eventsToRoom("general")
	require.Len(t, room, 1)
	assert.Nil(t, room[0].data.(*models.ChatMessage).MentionedUser)
}

func TestSendChannelMessageValidation(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addChannel("general", "general", false, "user-1")
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	err := f.messages.SendChannelMessage(context.Background(), alice, "general", "   ")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = f.messages.SendChannelMessage(context.Background(), alice, "general", strings.Repeat("a", maxMessageLength+1))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSendChannelMessageLimitCountsCharactersNotBytes(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addChannel("general", "general", false, "user-1")
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	// 2000 two-byte runes is within the character limit despite being
	// 4000 bytes.
	require.NoError(t, f.messages.SendChannelMessage(context.Background(), alice, "general", strings.Repeat("é", maxMessageLength)))

	err := f.messages.SendChannelMessage(context.Background(), alice, "general", strings.Repeat("é", maxMessageLength+1))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("é", previewLength+10)
	got := preview(text)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, previewLength+3, utf8.RuneCountInString(got))

	exact := strings.Repeat("é", previewLength)
	assert.Equal(t, exact, preview(exact))
}

func TestSendDirectMessageToOnlineReceiver(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false)

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.join(t, "conn-2", "user-2", "bob", "general")
	f.transport.reset()

	require.NoError(t, f.messages.SendDirectMessage(context.Background(), alice, "user-2", "psst"))

	e, ok := f.transport.lastTo("conn-2", models.EventReceiveDM)
	require.True(t, ok)
	assert.Equal(t, "psst", e.data.(*models.DirectMessagePayload).Text)

	_, ok = f.transport.lastTo("conn-2", models.EventDMNotify)
	assert.True(t, ok)

	echo, ok := f.transport.lastTo("conn-1", models.EventDMSent)
	require.True(t, ok)
	assert.Equal(t, "delivered", echo.data.(*models.DirectMessageSent).Status)
}

func TestSendDirectMessageToOfflineReceiverIsDurable(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false)

	alice := f.join(t, "conn-1", "user-1", "alice", "general")
	f.transport.reset()

	require.NoError(t, f.messages.SendDirectMessage(context.Background(), alice, "user-2", "read this later"))

	// No live delivery, but the sender still gets the echo and the message
	// is durable for a later history fetch.
	assert.Empty(t, f.transport.eventsTo("conn-2"))
	_, ok := f.transport.lastTo("conn-1", models.EventDMSent)
	assert.True(t, ok)

	dms, err := f.store.ListDirectMessages(context.Background(), "user-1", "user-2", 50)
	require.NoError(t, err)
	require.Len(t, dms, 1)
	assert.Equal(t, "read this later", dms[0].Content)
}

func TestSendDirectMessageUnknownReceiver(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addChannel("general", "general", false)
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	err := f.messages.SendDirectMessage(context.Background(), alice, "ghost", "hello?")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addChannel("general", "general", false, "user-1")
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	msg, err := f.store.CreateMessage(context.Background(), "general", "user-1", "oops", nil)
	require.NoError(t, err)

	require.NoError(t, f.messages.DeleteMessage(context.Background(), alice, msg.ID))
	e, ok := f.transport.lastTo("conn-1", models.EventMessageDeleted)
	require.True(t, ok)
	assert.False(t, e.data.(*models.MessageDeleted).AlreadyDeleted)

	f.transport.reset()
	require.NoError(t, f.messages.DeleteMessage(context.Background(), alice, msg.ID))
	e, ok = f.transport.lastTo("conn-1", models.EventMessageDeleted)
	require.True(t, ok)
	assert.True(t, e.data.(*models.MessageDeleted).AlreadyDeleted)

	_, ok = f.transport.lastTo("conn-1", models.EventMessageDeleteOK)
	assert.True(t, ok)
}

func TestDeleteMessageRejectsNonAuthor(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false, "user-1", "user-2")
	bob := f.join(t, "conn-2", "user-2", "bob", "general")

	msg, err := f.store.CreateMessage(context.Background(), "general", "user-1", "mine", nil)
	require.NoError(t, err)

	err = f.messages.DeleteMessage(context.Background(), bob, msg.ID)
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))

	stored, err := f.store.FindMessageByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
}

func TestDeleteDirectMessageIsIdempotent(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false)
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	dm, err := f.store.CreateDirectMessage(context.Background(), "user-1", "user-2", "oops")
	require.NoError(t, err)

	require.NoError(t, f.messages.DeleteDirectMessage(context.Background(), alice, dm.ID))
	e, ok := f.transport.lastTo("conn-1", models.EventDMDeleted)
	require.True(t, ok)
	assert.False(t, e.data.(*models.DirectMessageDeleted).AlreadyDeleted)

	f.transport.reset()
	require.NoError(t, f.messages.DeleteDirectMessage(context.Background(), alice, dm.ID))
	e, ok = f.transport.lastTo("conn-1", models.EventDMDeleted)
	require.True(t, ok)
	assert.True(t, e.data.(*models.DirectMessageDeleted).AlreadyDeleted)

	// The deletion event lands in the shared DM room.
	room := f.transport.eventsToRoom(DMRoomID("user-1", "user-2"))
	require.NotEmpty(t, room)
	assert.Equal(t, models.EventDMDeleted, room[0].event)
}

func TestDirectMessageHistoryAdvancesReadPointer(t *testing.T) {
	f := newMessageFixture(t)
	f.store.addUser("user-1", "alice")
	f.store.addUser("user-2", "bob")
	f.store.addChannel("general", "general", false)
	alice := f.join(t, "conn-1", "user-1", "alice", "general")

	_, err := f.store.CreateDirectMessage(context.Background(), "user-2", "user-1", "first")
	require.NoError(t, err)
	last, err := f.store.CreateDirectMessage(context.Background(), "user-1", "user-2", "second")
	require.NoError(t, err)

	require.NoError(t, f.messages.DirectMessageHistory(context.Background(), alice, "user-2", 0))

	e, ok := f.transport.lastTo("conn-1", models.EventDMHistory)
	require.True(t, ok)
	history := e.data.(*models.DirectMessageHistory)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "first", history.Messages[0].Text)
	assert.Equal(t, "second", history.Messages[1].Text)

	assert.Equal(t, last.ID, f.store.reads["user-1/user-2"])
}
