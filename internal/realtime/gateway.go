package realtime

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/jdelgado/go-helpdesk/internal/database"
	"github.com/jdelgado/go-helpdesk/internal/types"
)

var (
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Broadcaster is the slice of the hub the gateway needs. Keeping it
// an interface keeps the gateway free of transport concerns and lets
// tests assert fan-out without sockets.
type Broadcaster interface {
	BroadcastToConversation(conversationId string, ev *ServerEvent)
	BroadcastToUser(userId int, ev *ServerEvent)
	BroadcastToTenant(tenantId string, ev *ServerEvent)
}

// Gateway bridges the conversation store and the live subscribers.
// Persistence is the durability boundary: a broadcast happens only
// after the store call succeeds, never before and never on failure.
type Gateway struct {
	log *log.Logger
	db  database.HelpdeskRepository
	bc  Broadcaster

	// convLocks serializes persist+broadcast per conversation so
	// delivery order matches persistence order under concurrent
	// senders.
	mu        sync.Mutex
	convLocks map[string]*sync.Mutex
}

func NewGateway(logger *log.Logger, db database.HelpdeskRepository, bc Broadcaster) *Gateway {
	return &Gateway{
		log:       logger,
		db:        db,
		bc:        bc,
		convLocks: make(map[string]*sync.Mutex),
	}
}

func (g *Gateway) conversationLock(conversationId string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.convLocks[conversationId]
	if !ok {
		lock = &sync.Mutex{}
		g.convLocks[conversationId] = lock
	}
	return lock
}

type SendMessageParams struct {
	ConversationId string
	TenantId       string
	SenderId       int
	SenderName     string
	SenderRole     types.Role
	Content        string
}

func (g *Gateway) SendMessage(p SendMessageParams) (types.Message, types.Conversation, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return types.Message{}, types.Conversation{}, ErrEmptyMessage
	}

	lock := g.conversationLock(p.ConversationId)
	lock.Lock()
	defer lock.Unlock()

	conv, err := g.db.GetConversationByExternalId(p.ConversationId, p.TenantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, types.Conversation{}, ErrConversationNotFound
		}
		return types.Message{}, types.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	rec, err := g.db.AppendMessage(conv.Id, database.AppendMessageParams{
		SenderId:   p.SenderId,
		SenderName: p.SenderName,
		SenderRole: string(p.SenderRole),
		Content:    content,
		CreatedAt:  Now(),
	})
	if err != nil {
		return types.Message{}, types.Conversation{}, fmt.Errorf("append message: %w", err)
	}

	conv.LastMessage = content
	conv.LastMessageAt = rec.CreatedAt

	msg := types.Message{
		Id:             rec.Id,
		ConversationId: conv.ExternalId,
		SenderId:       rec.SenderId,
		SenderName:     rec.SenderName,
		SenderRole:     types.Role(rec.SenderRole),
		Content:        rec.Content,
		Read:           rec.Read,
		Timestamp:      rec.CreatedAt,
	}

	g.bc.BroadcastToConversation(conv.ExternalId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: msg.Timestamp},
		Message: &MessageEvent{
			ConversationId: conv.ExternalId,
			Message:        msg,
		},
	})

	if conv.AssignedAgentId != 0 && conv.AssignedAgentId != p.SenderId {
		g.bc.BroadcastToUser(conv.AssignedAgentId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: msg.Timestamp},
			Notification: &Notification{
				MessageAlert: &MessageAlert{
					ConversationId: conv.ExternalId,
					Message:        msg,
					CustomerName:   conv.CustomerName,
				},
			},
		})
	}

	// a customer who isn't viewing the conversation still gets the
	// message in their user room
	if p.SenderRole != types.RoleCustomer {
		g.bc.BroadcastToUser(conv.CustomerId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: msg.Timestamp},
			Message: &MessageEvent{
				ConversationId: conv.ExternalId,
				Message:        msg,
			},
		})
	}

	return msg, conversationResult(conv), nil
}

func (g *Gateway) AssignConversation(conversationId, tenantId string, agentId int, agentName string) (types.Conversation, error) {
	lock := g.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	conv, err := g.db.GetConversationByExternalId(conversationId, tenantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, ErrConversationNotFound
		}
		return types.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	if err := g.db.AssignConversation(conv.Id, agentId, agentName); err != nil {
		return types.Conversation{}, fmt.Errorf("assign conversation: %w", err)
	}

	conv.AssignedAgentId = agentId
	conv.AssignedAgentName = agentName
	conv.Status = string(types.ConversationActive)

	g.bc.BroadcastToUser(agentId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Assigned: &ConversationAssigned{
				ConversationId: conv.ExternalId,
				AgentId:        agentId,
				AgentName:      agentName,
				CustomerName:   conv.CustomerName,
				Subject:        conv.Subject,
			},
		},
	})

	g.bc.BroadcastToConversation(conv.ExternalId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Assigned: &ConversationAssigned{
				ConversationId: conv.ExternalId,
				AgentId:        agentId,
				AgentName:      agentName,
			},
		},
	})

	return conversationResult(conv), nil
}

func (g *Gateway) CloseConversation(conversationId, tenantId string) (types.Conversation, error) {
	conv, err := g.setStatus(conversationId, tenantId, types.ConversationClosed, "resolved")
	if err != nil {
		return types.Conversation{}, err
	}

	g.bc.BroadcastToConversation(conv.ExternalId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Closed: &ConversationClosed{ConversationId: conv.ExternalId},
		},
	})

	return conv, nil
}

func (g *Gateway) ReopenConversation(conversationId, tenantId string) (types.Conversation, error) {
	conv, err := g.setStatus(conversationId, tenantId, types.ConversationActive, "open")
	if err != nil {
		return types.Conversation{}, err
	}

	g.bc.BroadcastToConversation(conv.ExternalId, &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Notification: &Notification{
			Reopened: &ConversationReopened{ConversationId: conv.ExternalId},
		},
	})

	return conv, nil
}

func (g *Gateway) setStatus(conversationId, tenantId string, status types.ConversationStatus, ticketStatus string) (types.Conversation, error) {
	lock := g.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	conv, err := g.db.GetConversationByExternalId(conversationId, tenantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, ErrConversationNotFound
		}
		return types.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	if err := g.db.SetConversationStatus(conv.Id, string(status)); err != nil {
		return types.Conversation{}, fmt.Errorf("set conversation status: %w", err)
	}
	conv.Status = string(status)

	// the linked ticket tracks the conversation but its update is not
	// part of the durability boundary
	if conv.TicketId != "" {
		if err := g.db.UpdateTicketStatus(conv.TicketId, ticketStatus); err != nil {
			g.log.Printf("update ticket %q status: %v", conv.TicketId, err)
		}
	}

	return conversationResult(conv), nil
}

func (g *Gateway) MarkMessagesRead(conversationId, tenantId string, readerId int) (types.Conversation, error) {
	lock := g.conversationLock(conversationId)
	lock.Lock()
	defer lock.Unlock()

	conv, err := g.db.GetConversationByExternalId(conversationId, tenantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, ErrConversationNotFound
		}
		return types.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	updated, err := g.db.MarkMessagesRead(conv.Id, readerId)
	if err != nil {
		return types.Conversation{}, fmt.Errorf("mark messages read: %w", err)
	}

	if updated {
		g.bc.BroadcastToConversation(conv.ExternalId, &ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			Notification: &Notification{
				Read: &MessagesRead{
					ConversationId: conv.ExternalId,
					UserId:         readerId,
				},
			},
		})
	}

	return conversationResult(conv), nil
}

func conversationResult(conv database.Conversation) types.Conversation {
	return types.Conversation{
		Id:                conv.Id,
		ExternalId:        conv.ExternalId,
		TenantId:          conv.TenantId,
		CustomerId:        conv.CustomerId,
		CustomerName:      conv.CustomerName,
		CustomerEmail:     conv.CustomerEmail,
		Subject:           conv.Subject,
		Status:            types.ConversationStatus(conv.Status),
		AssignedAgentId:   conv.AssignedAgentId,
		AssignedAgentName: conv.AssignedAgentName,
		TicketId:          conv.TicketId,
		LastMessage:       conv.LastMessage,
		LastMessageAt:     conv.LastMessageAt,
		CreatedAt:         conv.CreatedAt,
		UpdatedAt:         conv.UpdatedAt,
	}
}
