package realtime

import (
	"testing"

	"github.com/jdelgado/go-helpdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinConversation(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	authenticateClient(t, hub, c)

	hub.dispatch(&ClientEvent{
		BaseEvent: BaseEvent{Id: 21},
		Join:      &Join{ConversationId: "conv-1"},
		client:    c,
	})

	evs := drainEvents(c)
	require.Len(t, evs, 1, "expected a join acknowledgement")
	require.NotNil(t, evs[0].Response, "expected response payload")
	assert.Equal(t, 21, evs[0].Id, "expected ack to carry the event id")
	assert.Equal(t, 200, evs[0].Response.ResponseCode, "expected 200 response code")

	assert.True(t, c.inConversation("conv-1"), "expected reverse index entry")

	hub.mu.RLock()
	room := hub.conversationRooms["conv-1"]
	_, member := room[c]
	hub.mu.RUnlock()
	assert.True(t, member, "expected client in conversation room")
}

func TestJoinConversation_Idempotent(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	authenticateClient(t, hub, c)

	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: c})
	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: c})

	evs := drainEvents(c)
	assert.Len(t, evs, 2, "expected both joins to be acknowledged")

	hub.mu.RLock()
	members := len(hub.conversationRooms["conv-1"])
	hub.mu.RUnlock()
	assert.Equal(t, 1, members, "expected a single membership entry")
}

func TestLeaveConversation(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	authenticateClient(t, hub, c)

	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: c})
	drainEvents(c)

	hub.dispatch(&ClientEvent{
		BaseEvent: BaseEvent{Id: 31},
		Leave:     &Leave{ConversationId: "conv-1"},
		client:    c,
	})

	evs := drainEvents(c)
	require.Len(t, evs, 1, "expected a leave acknowledgement")
	assert.Equal(t, 31, evs[0].Id, "expected ack to carry the event id")

	assert.False(t, c.inConversation("conv-1"), "expected reverse index entry to be removed")

	hub.mu.RLock()
	_, roomExists := hub.conversationRooms["conv-1"]
	hub.mu.RUnlock()
	assert.False(t, roomExists, "expected empty room to be destroyed")
}

func TestLeaveConversation_NotAMemberIsNoop(t *testing.T) {
	hub := newTestHub(t)

	c := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	authenticateClient(t, hub, c)

	hub.dispatch(&ClientEvent{Leave: &Leave{ConversationId: "conv-1"}, client: c})
	assert.Empty(t, drainEvents(c), "expected no response for a room never joined")
}

func TestBroadcastToConversation_DeliveryTimeMembership(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	b := newTestClient(hub, types.User{Id: 2, Name: "bob", TenantId: "acme", Role: types.RoleCustomer})
	authenticateClient(t, hub, a)
	authenticateClient(t, hub, b)
	drainEvents(a)
	drainEvents(b)

	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: a})
	hub.dispatch(&ClientEvent{Join: &Join{ConversationId: "conv-1"}, client: b})
	hub.dispatch(&ClientEvent{Leave: &Leave{ConversationId: "conv-1"}, client: b})
	drainEvents(a)
	drainEvents(b)

	ev := &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Message: &MessageEvent{
			ConversationId: "conv-1",
			Message:        types.Message{Id: 1, ConversationId: "conv-1", Content: "hello"},
		},
	}
	hub.BroadcastToConversation("conv-1", ev)

	got := drainEvents(a)
	require.Len(t, got, 1, "expected delivery to the remaining member")
	assert.Equal(t, ev, got[0], "expected the broadcast event")

	assert.Empty(t, drainEvents(b), "expected no delivery after leaving")
}

func TestBroadcast_SkipClient(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	b := newTestClient(hub, types.User{Id: 2, Name: "bob", TenantId: "acme", Role: types.RoleCustomer})
	authenticateClient(t, hub, a)
	authenticateClient(t, hub, b)
	drainEvents(a)
	drainEvents(b)

	hub.BroadcastToTenant("acme", &ServerEvent{
		BaseEvent:    BaseEvent{Timestamp: Now()},
		Notification: &Notification{Presence: &Presence{UserId: 1, Online: true}},
		SkipClient:   a,
	})

	assert.Empty(t, drainEvents(a), "expected originator to be excluded")
	assert.Len(t, drainEvents(b), 1, "expected other tenant members to receive the event")
}

func TestBroadcastToUser_AllConnections(t *testing.T) {
	hub := newTestHub(t)

	account := types.User{Id: 4, Name: "jane", TenantId: "acme", Role: types.RoleAgent}
	first := newTestClient(hub, account)
	second := newTestClient(hub, account)
	authenticateClient(t, hub, first)
	authenticateClient(t, hub, second)
	drainEvents(first)
	drainEvents(second)

	hub.BroadcastToUser(4, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			MessageAlert: &MessageAlert{ConversationId: "conv-1", CustomerName: "bob"},
		},
	})

	assert.Len(t, drainEvents(first), 1, "expected delivery to the first connection")
	assert.Len(t, drainEvents(second), 1, "expected delivery to the second connection")
}

func TestBroadcast_TenantIsolation(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient(hub, types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent})
	other := newTestClient(hub, types.User{Id: 2, Name: "eve", TenantId: "globex", Role: types.RoleAgent})
	authenticateClient(t, hub, a)
	authenticateClient(t, hub, other)

	hub.BroadcastToTenant("acme", &ServerEvent{
		BaseEvent:    BaseEvent{Timestamp: Now()},
		Notification: &Notification{Presence: &Presence{UserId: 1, Online: true}},
	})

	assert.Len(t, drainEvents(a), 1, "expected delivery within the tenant")
	assert.Empty(t, drainEvents(other), "expected no cross-tenant delivery")
}
