package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/jdelgado/go-helpdesk/internal/stats"
	"github.com/jdelgado/go-helpdesk/internal/testutil"
	"github.com/jdelgado/go-helpdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	hub, err := NewHub(testutil.TestLogger(t), su)
	require.NoError(t, err, "expected no error creating hub")
	return hub
}

func newTestClient(hub *Hub, account types.User) *Client {
	c := NewClient(account, nil, hub, hub.log)
	hub.addClient(c)
	return c
}

// drainEvents empties a client's send queue without blocking.
func drainEvents(c *Client) []*ServerEvent {
	var evs []*ServerEvent
	for {
		select {
		case ev := <-c.send:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func authenticateClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()

	hub.dispatch(&ClientEvent{
		Authenticate: &Authenticate{
			UserId:   c.account.Id,
			TenantId: c.account.TenantId,
			Role:     c.account.Role,
		},
		client: c,
	})
	drainEvents(c)
}

func TestNewHub_RegistersMetrics(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	hub, err := NewHub(testutil.TestLogger(t), su)
	require.NoError(t, err, "expected no error creating hub")
	assert.NotNil(t, hub.typing, "expected typing coordinator to be initialized")

	su.AssertExpectations(t)
}

func TestAuthenticate(t *testing.T) {
	hub := newTestHub(t)

	agent := types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent}
	customer := types.User{Id: 2, Name: "bob", TenantId: "acme", Role: types.RoleCustomer}

	observer := newTestClient(hub, customer)
	authenticateClient(t, hub, observer)

	c := newTestClient(hub, agent)
	hub.dispatch(&ClientEvent{
		BaseEvent:    BaseEvent{Id: 11},
		Authenticate: &Authenticate{UserId: 1, TenantId: "acme", Role: types.RoleAgent},
		client:       c,
	})

	evs := drainEvents(c)
	require.Len(t, evs, 1, "expected only the acknowledgement")
	require.NotNil(t, evs[0].Response, "expected response payload")
	assert.Equal(t, 11, evs[0].Id, "expected ack to carry the event id")
	assert.Equal(t, 200, evs[0].Response.ResponseCode, "expected 200 response code")

	obsEvs := drainEvents(observer)
	require.Len(t, obsEvs, 1, "expected one presence event for the observer")
	require.NotNil(t, obsEvs[0].Notification, "expected a notification")
	require.NotNil(t, obsEvs[0].Notification.Presence, "expected a presence notification")
	assert.Equal(t, 1, obsEvs[0].Notification.Presence.UserId, "expected presence for the authenticated user")
	assert.Equal(t, types.RoleAgent, obsEvs[0].Notification.Presence.Role, "expected presence to carry the role")
	assert.True(t, obsEvs[0].Notification.Presence.Online, "expected user to be online")

	ident, bound := hub.identityOf(c)
	require.True(t, bound, "expected identity to be bound")
	assert.Equal(t, types.Identity{UserId: 1, TenantId: "acme", Role: types.RoleAgent}, ident, "expected bound identity to match payload")
}

func TestAuthenticate_Idempotent(t *testing.T) {
	hub := newTestHub(t)

	agent := types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent}
	observer := newTestClient(hub, types.User{Id: 2, Name: "bob", TenantId: "acme", Role: types.RoleCustomer})
	authenticateClient(t, hub, observer)

	c := newTestClient(hub, agent)
	authenticateClient(t, hub, c)
	drainEvents(observer)

	// same binding again only acks
	hub.dispatch(&ClientEvent{
		BaseEvent:    BaseEvent{Id: 12},
		Authenticate: &Authenticate{UserId: 1, TenantId: "acme", Role: types.RoleAgent},
		client:       c,
	})

	evs := drainEvents(c)
	require.Len(t, evs, 1, "expected only the acknowledgement")
	require.NotNil(t, evs[0].Response, "expected response payload")
	assert.Equal(t, 200, evs[0].Response.ResponseCode, "expected 200 response code")

	assert.Empty(t, drainEvents(observer), "expected no duplicate presence broadcast")

	hub.mu.RLock()
	count := hub.identityConns[identityKey{tenantId: "acme", userId: 1}]
	hub.mu.RUnlock()
	assert.Equal(t, 1, count, "expected a single counted connection for the identity")
}

func TestAuthenticate_ForeignIdentityIgnored(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	hub.dispatch(&ClientEvent{
		Authenticate: &Authenticate{UserId: 99, TenantId: "acme", Role: types.RoleAgent},
		client:       c,
	})

	assert.Empty(t, drainEvents(c), "expected no response for a foreign identity")

	_, bound := hub.identityOf(c)
	assert.False(t, bound, "expected no identity binding")
}

func TestDispatch_IgnoresEventsBeforeAuthenticate(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})

	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: c})
	hub.dispatch(&ClientEvent{Leave: &Leave{ConversationId: "conv-1"}, client: c})
	hub.dispatch(&ClientEvent{Typing: &Typing{ConversationId: "conv-1", Started: true}, client: c})

	assert.Empty(t, drainEvents(c), "expected no responses before authenticate")
	assert.False(t, c.inConversation("conv-1"), "expected no conversation membership")

	hub.mu.RLock()
	_, roomExists := hub.conversationRooms["conv-1"]
	hub.mu.RUnlock()
	assert.False(t, roomExists, "expected no conversation room to be created")
}

func TestPresence_SingleAnnouncementAcrossConnections(t *testing.T) {
	hub := newTestHub(t)

	agent := types.User{Id: 5, Name: "jane", TenantId: "acme", Role: types.RoleAgent}
	observer := newTestClient(hub, types.User{Id: 9, Name: "bob", TenantId: "acme", Role: types.RoleCustomer})
	authenticateClient(t, hub, observer)

	first := newTestClient(hub, agent)
	authenticateClient(t, hub, first)

	evs := drainEvents(observer)
	require.Len(t, evs, 1, "expected one presence event for the first connection")
	assert.True(t, evs[0].Notification.Presence.Online, "expected user to come online")

	second := newTestClient(hub, agent)
	authenticateClient(t, hub, second)
	assert.Empty(t, drainEvents(observer), "expected no presence event for an additional connection")

	hub.disconnect(first)
	assert.Empty(t, drainEvents(observer), "expected no offline event while a connection remains")

	hub.disconnect(second)
	evs = drainEvents(observer)
	require.Len(t, evs, 1, "expected one offline event after the last connection closed")
	require.NotNil(t, evs[0].Notification.Presence, "expected a presence notification")
	assert.Equal(t, 5, evs[0].Notification.Presence.UserId, "expected offline event for the agent")
	assert.False(t, evs[0].Notification.Presence.Online, "expected user to be offline")
}

func TestDisconnect_UnwindsAllRooms(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	authenticateClient(t, hub, c)

	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: c})
	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-2"}, client: c})
	drainEvents(c)

	hub.disconnect(c)

	hub.mu.RLock()
	assert.Empty(t, hub.clients, "expected no registered connections")
	assert.Empty(t, hub.sessions, "expected no identity bindings")
	assert.Empty(t, hub.tenantRooms, "expected tenant room to be removed")
	assert.Empty(t, hub.userRooms, "expected user room to be removed")
	assert.Empty(t, hub.conversationRooms, "expected conversation rooms to be destroyed")
	hub.mu.RUnlock()

	hub.BroadcastToConversation("conv-1", NoErrOK(0, nil))
	hub.BroadcastToConversation("conv-2", NoErrOK(0, nil))
	hub.BroadcastToTenant("acme", NoErrOK(0, nil))
	hub.BroadcastToUser(1, NoErrOK(0, nil))
	assert.Empty(t, drainEvents(c), "expected no delivery after disconnect")
}

func TestDisconnect_UnknownClientIsNoop(t *testing.T) {
	hub := newTestHub(t)

	c := NewClient(types.User{Id: 1, Name: "jane", TenantId: "acme"}, nil, hub, hub.log)
	hub.disconnect(c)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.clients, "expected no registered connections")
}

func TestHub_RunAndShutdown(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()

	c := NewClient(types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent}, nil, hub, hub.log)
	hub.RegisterClient(c)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.clients[c]
		return ok
	}, time.Second, 10*time.Millisecond, "expected client to be registered")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx), "expected clean shutdown")

	select {
	case <-c.stop:
	default:
		t.Error("expected client to be stopped on shutdown")
	}
}
