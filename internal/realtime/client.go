package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jdelgado/go-helpdesk/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client wraps one websocket connection. The account comes from the
// HTTP session that performed the upgrade; the realtime identity is
// only bound later by an explicit authenticate event.
type Client struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	log     *log.Logger
	account types.User
	send    chan *ServerEvent
	stop    chan struct{}

	// conversations is the reverse index of conversation rooms this
	// connection joined, so disconnect can unwind every membership.
	conversations map[string]struct{}
	convLock      sync.RWMutex

	stopOnce sync.Once
}

func NewClient(account types.User, conn *websocket.Conn, hub *Hub, l *log.Logger) *Client {
	return &Client{
		id:            uuid.NewString(),
		conn:          conn,
		hub:           hub,
		log:           l,
		account:       account,
		send:          make(chan *ServerEvent, 256),
		conversations: make(map[string]struct{}),
		stop:          make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent(-1))
			continue
		}

		if err := ev.validate(); err != nil {
			c.log.Printf("rejecting event from session %s: %v", c.id, err)
			c.queueEvent(ErrInvalidEvent(ev.Id))
			continue
		}

		ev.client = c
		ev.Timestamp = Now()

		c.hub.dispatch(&ev)
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send queue full for session %s, dropping event", c.id)
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.hub.deregisterChan <- c
	c.stopClient()
}

func (c *Client) addConversation(id string) {
	c.convLock.Lock()
	defer c.convLock.Unlock()

	c.conversations[id] = struct{}{}
}

func (c *Client) delConversation(id string) {
	c.convLock.Lock()
	defer c.convLock.Unlock()

	delete(c.conversations, id)
}

func (c *Client) inConversation(id string) bool {
	c.convLock.RLock()
	defer c.convLock.RUnlock()

	_, ok := c.conversations[id]
	return ok
}

func (c *Client) joinedConversations() []string {
	c.convLock.RLock()
	defer c.convLock.RUnlock()

	ids := make([]string, 0, len(c.conversations))
	for id := range c.conversations {
		ids = append(ids, id)
	}
	return ids
}
