package realtime

import (
	"log"
	"sync"
	"time"
)

// typingExpiry bounds how long a typing indicator can stay lit
// without a fresh start signal. Expiry lives server-side so a lost
// stop event cannot strand observers on "is typing".
const typingExpiry = 3 * time.Second

type typingKey struct {
	conversationId string
	userId         int
}

type typingEntry struct {
	userName string
	timer    *time.Timer
}

// typingCoordinator relays typing signals to conversation rooms and
// auto-expires stale state.
type typingCoordinator struct {
	log    *log.Logger
	hub    *Hub
	expiry time.Duration

	mu     sync.Mutex
	active map[typingKey]*typingEntry
}

func newTypingCoordinator(logger *log.Logger, hub *Hub) *typingCoordinator {
	return &typingCoordinator{
		log:    logger,
		hub:    hub,
		expiry: typingExpiry,
		active: make(map[typingKey]*typingEntry),
	}
}

func (tc *typingCoordinator) start(conversationId string, userId int, userName string, origin *Client) {
	key := typingKey{conversationId: conversationId, userId: userId}

	tc.mu.Lock()
	entry, ok := tc.active[key]
	if ok {
		entry.timer.Reset(tc.expiry)
		entry.userName = userName
		tc.mu.Unlock()
		return
	}

	entry = &typingEntry{userName: userName}
	entry.timer = time.AfterFunc(tc.expiry, func() {
		tc.expire(key)
	})
	tc.active[key] = entry
	tc.mu.Unlock()

	tc.hub.broadcastToConversation(conversationId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingNotification{
				ConversationId: conversationId,
				UserId:         userId,
				UserName:       userName,
				Started:        true,
			},
		},
		SkipClient: origin,
	})
}

func (tc *typingCoordinator) stop(conversationId string, userId int, origin *Client) {
	key := typingKey{conversationId: conversationId, userId: userId}

	tc.mu.Lock()
	entry, ok := tc.active[key]
	if !ok {
		tc.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(tc.active, key)
	tc.mu.Unlock()

	tc.hub.broadcastToConversation(conversationId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingNotification{
				ConversationId: conversationId,
				UserId:         userId,
				Started:        false,
			},
		},
		SkipClient: origin,
	})
}

func (tc *typingCoordinator) expire(key typingKey) {
	tc.mu.Lock()
	if _, ok := tc.active[key]; !ok {
		tc.mu.Unlock()
		return
	}
	delete(tc.active, key)
	tc.mu.Unlock()

	tc.log.Printf("typing state for user %d in conversation %q expired", key.userId, key.conversationId)
	tc.hub.broadcastToConversation(key.conversationId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingNotification{
				ConversationId: key.conversationId,
				UserId:         key.userId,
				Started:        false,
			},
		},
	})
}

func (tc *typingCoordinator) shutdown() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for key, entry := range tc.active {
		entry.timer.Stop()
		delete(tc.active, key)
	}
}
