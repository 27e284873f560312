package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-server/internal/models"
)

func newTypingFixture(stopOnSwitch bool) (*fakeTransport, *Registry, *TypingTracker) {
	transport := newFakeTransport()
	registry := NewRegistry(transport)
	typing := NewTypingTracker(transport, registry, 0, stopOnSwitch)
	return transport, registry, typing
}

func TestTypingStartStopBroadcastsToRoom(t *testing.T) {
	transport, registry, typing := newTypingFixture(false)
	conn := registry.Register("conn-1", "user-1", "alice")
	conn.setCurrentChannel("general")

	require.NoError(t, typing.Start(conn, MessageTypeChannel, ""))
	events := transport.eventsToRoom("general")
	require.Len(t, events, 1)
	notice := events[0].data.(*models.TypingNotice)
	assert.True(t, notice.IsTyping)
	assert.Equal(t, "channel", notice.MessageType)
	assert.Contains(t, events[0].except, "conn-1")

	require.NoError(t, typing.Stop(conn, MessageTypeChannel, ""))
	events = transport.eventsToRoom("general")
	require.Len(t, events, 2)
	assert.False(t, events[1].data.(*models.TypingNotice).IsTyping)
}

func TestTypingSlotsAreIndependent(t *testing.T) {
	transport, registry, typing := newTypingFixture(false)
	conn := registry.Register("conn-1", "user-1", "alice")
	conn.setCurrentChannel("general")

	require.NoError(t, typing.Start(conn, MessageTypeChannel, ""))
	require.NoError(t, typing.Start(conn, MessageTypeDirect, "user-2"))

	// Stopping the DM indicator leaves the channel one active.
	require.NoError(t, typing.Stop(conn, MessageTypeDirect, "user-2"))
	assert.True(t, conn.typingSlot(MessageTypeChannel).Active)
	assert.False(t, conn.typingSlot(MessageTypeDirect).Active)

	dmRoom := DMRoomID("user-1", "user-2")
	events := transport.eventsToRoom(dmRoom)
	require.Len(t, events, 2)
	assert.False(t, events[1].data.(*models.TypingNotice).IsTyping)
}

func TestTypingRequiresTarget(t *testing.T) {
	_, registry, typing := newTypingFixture(false)
	conn := registry.Register("conn-1", "user-1", "alice")

	err := typing.Start(conn, MessageTypeChannel, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = typing.Start(conn, MessageTypeDirect, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestTypingCleanupOnDisconnect(t *testing.T) {
	transport, registry, typing := newTypingFixture(false)
	conn := registry.Register("conn-1", "user-1", "alice")
	conn.setCurrentChannel("general")

	require.NoError(t, typing.Start(conn, MessageTypeChannel, ""))
	require.NoError(t, typing.Start(conn, MessageTypeDirect, "user-2"))
	transport.reset()

	typing.CleanupDisconnect(conn)

	channelEvents := transport.eventsToRoom("general")
	require.Len(t, channelEvents, 1)
	notice := channelEvents[0].data.(*models.TypingNotice)
	assert.False(t, notice.IsTyping)
	assert.Equal(t, "user_disconnected", notice.Reason)

	dmEvents := transport.eventsToRoom(DMRoomID("user-1", "user-2"))
	require.Len(t, dmEvents, 1)
	assert.Equal(t, "user_disconnected", dmEvents[0].data.(*models.TypingNotice).Reason)

	assert.False(t, conn.typingSlot(MessageTypeChannel).Active)
	assert.False(t, conn.typingSlot(MessageTypeDirect).Active)
}

func TestTypingStopOnSwitch(t *testing.T) {
	transport, registry, typing := newTypingFixture(true)
	conn := registry.Register("conn-1", "user-1", "alice")

	require.NoError(t, typing.Start(conn, MessageTypeChannel, "general"))
	transport.reset()

	require.NoError(t, typing.Start(conn, MessageTypeChannel, "random"))

	old := transport.eventsToRoom("general")
	require.Len(t, old, 1)
	assert.False(t, old[0].data.(*models.TypingNotice).IsTyping)

	fresh := transport.eventsToRoom("random")
	require.Len(t, fresh, 1)
	assert.True(t, fresh[0].data.(*models.TypingNotice).IsTyping)
}

func TestTypingSweeperExpiresStaleSlots(t *testing.T) {
	transport := newFakeTransport()
	registry := NewRegistry(transport)
	typing := NewTypingTracker(transport, registry, 10*time.Millisecond, false)

	conn := registry.Register("conn-1", "user-1", "alice")
	conn.setCurrentChannel("general")
	require.NoError(t, typing.Start(conn, MessageTypeChannel, ""))

	conn.setTypingSlot(MessageTypeChannel, TypingSlot{
		Room:      "general",
		Active:    true,
		StartedAt: time.Now().Add(-time.Minute),
	})
	transport.reset()

	typing.sweep()

	events := transport.eventsToRoom("general")
	require.Len(t, events, 1)
	notice := events[0].data.(*models.TypingNotice)
	assert.False(t, notice.IsTyping)
	assert.Equal(t, "timeout", notice.Reason)
	assert.False(t, conn.typingSlot(MessageTypeChannel).Active)
}
