package realtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jdelgado/go-helpdesk/internal/types"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the closed set of events a connection may send.
// Exactly one of the kind fields must be set; anything else is
// rejected with an error response rather than coerced.
type ClientEvent struct {
	BaseEvent
	Authenticate *Authenticate `json:"authenticate,omitempty"`
	Join         *Join         `json:"join,omitempty"`
	Leave        *Leave        `json:"leave,omitempty"`
	Typing       *Typing       `json:"typing,omitempty"`

	client *Client
}

type Authenticate struct {
	UserId   int        `json:"user_id"`
	TenantId string     `json:"tenant_id"`
	Role     types.Role `json:"role"`
}

type Join struct {
	ConversationId string `json:"conversation_id"`
}

type Leave struct {
	ConversationId string `json:"conversation_id"`
}

type Typing struct {
	ConversationId string `json:"conversation_id"`
	UserName       string `json:"user_name,omitempty"`
	Started        bool   `json:"started"`
}

func (e *ClientEvent) validate() error {
	var kinds int
	if e.Authenticate != nil {
		kinds++
		if e.Authenticate.TenantId == "" {
			return fmt.Errorf("authenticate: missing tenant id")
		}
		if e.Authenticate.UserId == 0 {
			return fmt.Errorf("authenticate: missing user id")
		}
		if !e.Authenticate.Role.Valid() {
			return fmt.Errorf("authenticate: invalid role %q", e.Authenticate.Role)
		}
	}
	if e.Join != nil {
		kinds++
		if e.Join.ConversationId == "" {
			return fmt.Errorf("join: missing conversation id")
		}
	}
	if e.Leave != nil {
		kinds++
		if e.Leave.ConversationId == "" {
			return fmt.Errorf("leave: missing conversation id")
		}
	}
	if e.Typing != nil {
		kinds++
		if e.Typing.ConversationId == "" {
			return fmt.Errorf("typing: missing conversation id")
		}
	}

	if kinds != 1 {
		return fmt.Errorf("expected exactly one event kind, got %d", kinds)
	}
	return nil
}

// ServerEvent is the closed set of events delivered to connections.
type ServerEvent struct {
	BaseEvent
	Response     *Response     `json:"response,omitempty"`
	Message      *MessageEvent `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`

	// SkipClient excludes the originating connection from a room
	// broadcast.
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// MessageEvent carries a persisted conversation message to room
// members (message:new in the client protocol).
type MessageEvent struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
}

type Notification struct {
	Presence     *Presence             `json:"presence,omitempty"`
	Typing       *TypingNotification   `json:"typing,omitempty"`
	MessageAlert *MessageAlert         `json:"message_alert,omitempty"`
	Assigned     *ConversationAssigned `json:"assigned,omitempty"`
	Closed       *ConversationClosed   `json:"closed,omitempty"`
	Reopened     *ConversationReopened `json:"reopened,omitempty"`
	Read         *MessagesRead         `json:"read,omitempty"`
}

type Presence struct {
	UserId int        `json:"user_id"`
	Role   types.Role `json:"role"`
	Online bool       `json:"online"`
}

type TypingNotification struct {
	ConversationId string `json:"conversation_id"`
	UserId         int    `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
	Started        bool   `json:"started"`
}

// MessageAlert is the out-of-room notification delivered to an
// assigned agent's user room when a message arrives in one of their
// conversations.
type MessageAlert struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
	CustomerName   string        `json:"customer_name"`
}

type ConversationAssigned struct {
	ConversationId string `json:"conversation_id"`
	AgentId        int    `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	CustomerName   string `json:"customer_name,omitempty"`
	Subject        string `json:"subject,omitempty"`
}

type ConversationClosed struct {
	ConversationId string `json:"conversation_id"`
}

type ConversationReopened struct {
	ConversationId string `json:"conversation_id"`
}

type MessagesRead struct {
	ConversationId string `json:"conversation_id"`
	UserId         int    `json:"user_id"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func ErrInvalidEvent(id int) *ServerEvent {
	ev := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid event format",
		},
	}

	if id > 0 {
		ev.Id = id
	}
	return ev
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
