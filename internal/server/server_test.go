package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/stats"
	"github.com/tripware/tripchat/internal/testutil"
	"github.com/tripware/tripchat/internal/types"
)

// newTestChatServer creates a ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.TripChatRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return().Times(4)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func newTestClient(t *testing.T, cs *ChatServer, user types.Identity) *Client {
	t.Helper()
	return &Client{
		sessionId:  "test-" + user.Email,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockTripChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return().Times(4)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.userMap, "expected userMap to be initialized")
}

func Test_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", numConnectionsMetric).Twice()
	su.On("Decr", numConnectionsMetric).Twice()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockTripChatRepository{}, su)

	c1 := newTestClient(t, cs, types.Identity{Id: 1, Email: "c1@example.com"})
	c2 := newTestClient(t, cs, types.Identity{Id: 1, Email: "c2@example.com"})

	cs.addClient(c1)
	cs.addClient(c2)

	assert.Contains(t, cs.clients, c1, "expected c1 in client registry")
	assert.Contains(t, cs.clients, c2, "expected c2 in client registry")
	assert.Len(t, cs.userMap[1], 2, "expected both connections under user 1")

	cs.removeClient(c1)
	assert.NotContains(t, cs.clients, c1, "expected c1 removed from client registry")
	assert.Len(t, cs.userMap[1], 1, "expected one connection left under user 1")

	cs.removeClient(c2)
	assert.NotContains(t, cs.userMap, 1, "expected user entry removed with last connection")
}

func Test_removeClient_idempotent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", numConnectionsMetric).Once()
	su.On("Decr", numConnectionsMetric).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockTripChatRepository{}, su)

	c := newTestClient(t, cs, types.Identity{Id: 1})
	cs.addClient(c)
	cs.removeClient(c)

	// duplicate disconnect signal must be a no-op, including for metrics
	cs.removeClient(c)
	assert.NotContains(t, cs.clients, c, "expected client removed")
}

func TestPushToUser(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", numConnectionsMetric).Times(3)
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockTripChatRepository{}, su)

	c1 := newTestClient(t, cs, types.Identity{Id: 2, Email: "c1@example.com"})
	c2 := newTestClient(t, cs, types.Identity{Id: 2, Email: "c2@example.com"})
	other := newTestClient(t, cs, types.Identity{Id: 3, Email: "other@example.com"})

	cs.addClient(c1)
	cs.addClient(c2)
	cs.addClient(other)

	notif := &types.Notification{Id: 1, UserId: 2, Title: "Trip approved", Type: "status"}
	cs.PushToUser(2, &ServerMessage{Notification: notif})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Notification, "expected notification event")
			assert.Equal(t, notif, msg.Notification, "expected notification payload to match")
		default:
			t.Errorf("expected connection %q to receive notification", c.sessionId)
		}
	}

	assert.Len(t, other.send, 0, "expected no delivery to other users' connections")
}

func TestPushToUser_noConnections(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockTripChatRepository{}, su)

	// no live connections for the user is not an error
	cs.PushToUser(99, &ServerMessage{Notification: &types.Notification{Id: 1, UserId: 99}})
}

func Test_handleJoinRequest_roomNotFound(t *testing.T) {
	db := &database.MockTripChatRepository{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})

	c := newTestClient(t, cs, types.Identity{Id: 1})

	db.On("GetChatRoomByExternalId", "missing-room").Return(database.ChatRoom{}, sql.ErrNoRows).Once()

	cs.handleJoinRequest(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{ChatRoomId: "missing-room"},
		UserId:      c.user.Id,
		client:      c,
	})

	assert.Empty(t, cs.rooms, "expected no room to be loaded")

	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.Error, "expected error event")
		assert.Equal(t, KindNotFound, msg.Error.Kind, "expected not_found error kind")
	default:
		t.Error("expected client to receive error event")
	}
}

func Test_handleJoinRequest_loadsRoom(t *testing.T) {
	db := &database.MockTripChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", numActiveRoomsMetric).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)

	c := newTestClient(t, cs, types.Identity{Id: 1})

	db.On("GetChatRoomByExternalId", "trip-r1").Return(database.ChatRoom{
		Id:         7,
		ExternalId: "trip-r1",
		Name:       "Andes trek",
	}, nil).Once()
	db.On("GetParticipant", 7, 1).Return(database.Participant{Id: 1, ChatRoomId: 7, UserId: 1}, nil).Once()

	cs.handleJoinRequest(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{ChatRoomId: "trip-r1"},
		UserId:      c.user.Id,
		client:      c,
	})

	assert.Contains(t, cs.rooms, "trip-r1", "expected room to be loaded")

	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.Response, "expected join ack")
	case <-time.After(time.Second):
		t.Error("timeout: client did not receive join ack")
	}

	assert.True(t, cs.rooms["trip-r1"].hasClient(c), "expected client subscribed to loaded room")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("deregister after shutdown does not block", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, cs.Shutdown(ctx), "expected clean shutdown")

		// a straggler read pump may still be tearing down its connection
		c := newTestClient(t, cs, types.Identity{Id: 1})
		finished := make(chan struct{})
		go func() {
			cs.DeregisterClient(c)
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Error("expected deregister to return after the run loop stopped")
		}
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockTripChatRepository{}, &stats.MockStatsUpdater{})

		// run loop intentionally not started
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error")
	})
}
