package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/jdelgado/go-helpdesk/internal/stats"
	"github.com/jdelgado/go-helpdesk/internal/types"
)

const (
	statConnections       = "NumConnections"
	statSessions          = "NumSessions"
	statConversationRooms = "NumConversationRooms"
	statEventsBroadcast   = "NumEventsBroadcast"
)

type identityKey struct {
	tenantId string
	userId   int
}

type stopReq struct {
	done chan struct{}
}

// Hub owns every piece of shared realtime state: the connection set,
// identity bindings, and the tenant/user/conversation room maps. All
// mutation goes through its methods; nothing else touches the maps.
type Hub struct {
	log   *log.Logger
	stats stats.StatsProvider

	registerChan   chan *Client
	deregisterChan chan *Client
	stopChan       chan stopReq

	mu                sync.RWMutex
	clients           map[*Client]struct{}
	sessions          map[*Client]types.Identity
	tenantRooms       map[string]map[*Client]struct{}
	userRooms         map[int]map[*Client]struct{}
	conversationRooms map[string]map[*Client]struct{}
	// identityConns counts live connections per identity so presence
	// is emitted once per user, not once per tab.
	identityConns map[identityKey]int

	typing *typingCoordinator
}

func NewHub(logger *log.Logger, su stats.StatsProvider) (*Hub, error) {
	h := &Hub{
		log:               logger,
		stats:             su,
		registerChan:      make(chan *Client),
		deregisterChan:    make(chan *Client),
		stopChan:          make(chan stopReq),
		clients:           make(map[*Client]struct{}),
		sessions:          make(map[*Client]types.Identity),
		tenantRooms:       make(map[string]map[*Client]struct{}),
		userRooms:         make(map[int]map[*Client]struct{}),
		conversationRooms: make(map[string]map[*Client]struct{}),
		identityConns:     make(map[identityKey]int),
	}
	h.typing = newTypingCoordinator(logger, h)

	su.RegisterMetric(statConnections)
	su.RegisterMetric(statSessions)
	su.RegisterMetric(statConversationRooms)
	su.RegisterMetric(statEventsBroadcast)

	return h, nil
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.registerChan:
			h.addClient(c)
		case c := <-h.deregisterChan:
			h.disconnect(c)
		case req := <-h.stopChan:
			h.log.Println("shutting down hub")
			h.typing.shutdown()

			h.mu.Lock()
			for c := range h.clients {
				c.stopClient()
			}
			h.mu.Unlock()

			close(req.done)
			return
		}
	}
}

func (h *Hub) RegisterClient(c *Client) {
	h.registerChan <- c
}

func (h *Hub) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stopChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	h.stats.Incr(statConnections)
	h.log.Printf("registered session %s for account %q", c.id, c.account.Name)
}

// dispatch routes a validated client event. Events that arrive before
// authenticate, or that reference a room the connection never joined,
// are dropped without an error: the transport may race authentication
// with other intents.
func (h *Hub) dispatch(ev *ClientEvent) {
	switch {
	case ev.Authenticate != nil:
		h.authenticate(ev.client, ev.Authenticate, ev.Id)
	case ev.Join != nil:
		h.joinConversation(ev.client, ev.Join.ConversationId, ev.Id)
	case ev.Leave != nil:
		h.leaveConversation(ev.client, ev.Leave.ConversationId, ev.Id)
	case ev.Typing != nil:
		h.handleTyping(ev.client, ev.Typing)
	}
}

func (h *Hub) authenticate(c *Client, auth *Authenticate, evId int) {
	ident := types.Identity{
		UserId:   auth.UserId,
		TenantId: auth.TenantId,
		Role:     auth.Role,
	}

	// The upgrade already ran behind the session middleware; a payload
	// claiming someone else's identity is dropped.
	if ident.UserId != c.account.Id || ident.TenantId != c.account.TenantId {
		h.log.Printf("session %s sent authenticate for foreign identity %d/%s, ignoring",
			c.id, ident.UserId, ident.TenantId)
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}

	prev, wasBound := h.sessions[c]
	if wasBound && prev == ident {
		h.mu.Unlock()
		c.queueEvent(NoErrOK(evId, nil))
		return
	}

	var prevOffline bool
	if wasBound {
		prevOffline = h.unbindLocked(c, prev)
	}

	h.sessions[c] = ident
	addToRoom(h.tenantRooms, ident.TenantId, c)
	addToRoom(h.userRooms, ident.UserId, c)

	key := identityKey{tenantId: ident.TenantId, userId: ident.UserId}
	h.identityConns[key]++
	first := h.identityConns[key] == 1
	h.mu.Unlock()

	if !wasBound {
		h.stats.Incr(statSessions)
	}

	if wasBound && prevOffline {
		h.broadcastToTenant(prev.TenantId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			Notification: &Notification{
				Presence: &Presence{UserId: prev.UserId, Role: prev.Role, Online: false},
			},
		})
	}

	if first {
		h.broadcastToTenant(ident.TenantId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			Notification: &Notification{
				Presence: &Presence{UserId: ident.UserId, Role: ident.Role, Online: true},
			},
			SkipClient: c,
		})
	}

	c.queueEvent(NoErrOK(evId, nil))
	h.log.Printf("session %s authenticated as user %d in tenant %q", c.id, ident.UserId, ident.TenantId)
}

// unbindLocked removes the connection from its identity's tenant and
// user rooms and decrements the identity refcount. It reports whether
// the identity went offline. Callers hold h.mu.
func (h *Hub) unbindLocked(c *Client, ident types.Identity) bool {
	removeFromRoom(h.tenantRooms, ident.TenantId, c)
	removeFromRoom(h.userRooms, ident.UserId, c)

	key := identityKey{tenantId: ident.TenantId, userId: ident.UserId}
	if n, ok := h.identityConns[key]; ok {
		if n <= 1 {
			delete(h.identityConns, key)
			return true
		}
		h.identityConns[key] = n - 1
	}
	return false
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	ident, wasBound := h.sessions[c]
	delete(h.sessions, c)

	wentOffline := false
	if wasBound {
		wentOffline = h.unbindLocked(c, ident)
	}

	for _, convId := range c.joinedConversations() {
		h.removeFromConversationLocked(convId, c)
	}
	h.mu.Unlock()

	h.stats.Decr(statConnections)
	if wasBound {
		h.stats.Decr(statSessions)
	}

	if wentOffline {
		h.broadcastToTenant(ident.TenantId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			Notification: &Notification{
				Presence: &Presence{UserId: ident.UserId, Role: ident.Role, Online: false},
			},
		})
	}

	h.log.Printf("session %s disconnected", c.id)
}

func (h *Hub) handleTyping(c *Client, t *Typing) {
	ident, bound := h.identityOf(c)
	if !bound || !c.inConversation(t.ConversationId) {
		return
	}

	name := t.UserName
	if name == "" {
		name = c.account.Name
	}

	if t.Started {
		h.typing.start(t.ConversationId, ident.UserId, name, c)
	} else {
		h.typing.stop(t.ConversationId, ident.UserId, c)
	}
}

func (h *Hub) identityOf(c *Client) (types.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ident, ok := h.sessions[c]
	return ident, ok
}
