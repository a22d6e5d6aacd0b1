package realtime

import (
	"testing"

	"github.com/jdelgado/go-helpdesk/internal/testutil"
	"github.com/jdelgado/go-helpdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	account := types.User{Id: 1, Name: "jane", TenantId: "acme", Role: types.RoleAgent}
	c := NewClient(account, nil, nil, testutil.TestLogger(t))

	assert.NotEmpty(t, c.id, "expected a session id")
	assert.Equal(t, account, c.account, "expected the account to be stored")
	assert.NotNil(t, c.send, "expected send channel to be initialized")
	assert.Equal(t, 256, cap(c.send), "expected buffered send channel")
	assert.NotNil(t, c.conversations, "expected conversation index to be initialized")
}

func TestClient_QueueEvent(t *testing.T) {
	c := NewClient(types.User{Id: 1}, nil, nil, testutil.TestLogger(t))

	ok := c.queueEvent(NoErrOK(1, nil))
	require.True(t, ok, "expected event to be queued")
	assert.Len(t, c.send, 1, "expected one queued event")

	// fill the remaining buffer
	for i := 0; i < cap(c.send)-1; i++ {
		require.True(t, c.queueEvent(NoErrOK(0, nil)), "expected event %d to be queued", i)
	}

	assert.False(t, c.queueEvent(NoErrOK(0, nil)), "expected overflow event to be dropped")
	assert.Len(t, c.send, cap(c.send), "expected queue to stay at capacity")
}

func TestClient_ConversationIndex(t *testing.T) {
	c := NewClient(types.User{Id: 1}, nil, nil, testutil.TestLogger(t))

	assert.False(t, c.inConversation("conv-1"), "expected no membership initially")
	assert.Empty(t, c.joinedConversations(), "expected empty index initially")

	c.addConversation("conv-1")
	c.addConversation("conv-2")
	assert.True(t, c.inConversation("conv-1"), "expected membership after add")
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, c.joinedConversations(), "expected both conversations indexed")

	c.delConversation("conv-1")
	assert.False(t, c.inConversation("conv-1"), "expected membership removed")
	assert.ElementsMatch(t, []string{"conv-2"}, c.joinedConversations(), "expected remaining conversation")
}

func TestClient_StopIsIdempotent(t *testing.T) {
	c := NewClient(types.User{Id: 1}, nil, nil, testutil.TestLogger(t))

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
