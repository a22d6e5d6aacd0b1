package realtime

// Rooms are plain membership sets keyed by tenant, user, or
// conversation. They hold no persistent state: a room exists exactly
// as long as it has members, and a disconnected connection is removed
// from every room it joined.

func addToRoom[K comparable](rooms map[K]map[*Client]struct{}, key K, c *Client) {
	room, ok := rooms[key]
	if !ok {
		room = make(map[*Client]struct{})
		rooms[key] = room
	}
	room[c] = struct{}{}
}

func removeFromRoom[K comparable](rooms map[K]map[*Client]struct{}, key K, c *Client) {
	room, ok := rooms[key]
	if !ok {
		return
	}

	delete(room, c)
	if len(room) == 0 {
		delete(rooms, key)
	}
}

func (h *Hub) joinConversation(c *Client, conversationId string, evId int) {
	h.mu.Lock()
	if _, bound := h.sessions[c]; !bound {
		h.mu.Unlock()
		return
	}

	room, ok := h.conversationRooms[conversationId]
	if !ok {
		room = make(map[*Client]struct{})
		h.conversationRooms[conversationId] = room
		h.stats.Incr(statConversationRooms)
	}

	if _, member := room[c]; member {
		h.mu.Unlock()
		// repeated joins are harmless
		c.queueEvent(NoErrOK(evId, nil))
		return
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	c.addConversation(conversationId)
	c.queueEvent(NoErrOK(evId, nil))
	h.log.Printf("session %s joined conversation %q", c.id, conversationId)
}

func (h *Hub) leaveConversation(c *Client, conversationId string, evId int) {
	h.mu.Lock()
	room, ok := h.conversationRooms[conversationId]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room[c]; !member {
		h.mu.Unlock()
		return
	}
	h.removeFromConversationLocked(conversationId, c)
	h.mu.Unlock()

	c.delConversation(conversationId)
	c.queueEvent(NoErrOK(evId, nil))
	h.log.Printf("session %s left conversation %q", c.id, conversationId)
}

// removeFromConversationLocked drops the connection from a
// conversation room, destroying the room when it empties. Callers
// hold h.mu.
func (h *Hub) removeFromConversationLocked(conversationId string, c *Client) {
	room, ok := h.conversationRooms[conversationId]
	if !ok {
		return
	}

	delete(room, c)
	if len(room) == 0 {
		delete(h.conversationRooms, conversationId)
		h.stats.Decr(statConversationRooms)
	}
}

// BroadcastToConversation delivers an event to every current member
// of the conversation room. Membership is snapshotted at delivery
// time, so connections that left or disconnected beforehand never
// receive the event.
func (h *Hub) BroadcastToConversation(conversationId string, ev *ServerEvent) {
	h.mu.RLock()
	members := snapshot(h.conversationRooms[conversationId])
	h.mu.RUnlock()

	h.deliver(members, ev)
}

func (h *Hub) BroadcastToUser(userId int, ev *ServerEvent) {
	h.mu.RLock()
	members := snapshot(h.userRooms[userId])
	h.mu.RUnlock()

	h.deliver(members, ev)
}

func (h *Hub) BroadcastToTenant(tenantId string, ev *ServerEvent) {
	h.mu.RLock()
	members := snapshot(h.tenantRooms[tenantId])
	h.mu.RUnlock()

	h.deliver(members, ev)
}

func (h *Hub) broadcastToTenant(tenantId string, ev *ServerEvent) {
	h.BroadcastToTenant(tenantId, ev)
}

func (h *Hub) broadcastToConversation(conversationId string, ev *ServerEvent) {
	h.BroadcastToConversation(conversationId, ev)
}

func snapshot(room map[*Client]struct{}) []*Client {
	if len(room) == 0 {
		return nil
	}

	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}

func (h *Hub) deliver(members []*Client, ev *ServerEvent) {
	if len(members) == 0 {
		return
	}

	h.stats.Incr(statEventsBroadcast)
	for _, c := range members {
		if c == ev.SkipClient {
			continue
		}
		c.queueEvent(ev)
	}
}
