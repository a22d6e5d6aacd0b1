package types

import (
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to support staff rather
// than a customer.
func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleCustomer
}

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	TenantId     string    `json:"tenant_id"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Identity is the binding established by an authenticate event on a
// live connection.
type Identity struct {
	UserId   int    `json:"user_id"`
	TenantId string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationWaiting ConversationStatus = "waiting"
	ConversationClosed  ConversationStatus = "closed"
)

type Conversation struct {
	Id                int                `json:"-"`
	ExternalId        string             `json:"id"`
	TenantId          string             `json:"tenant_id"`
	CustomerId        int                `json:"customer_id"`
	CustomerName      string             `json:"customer_name"`
	CustomerEmail     string             `json:"customer_email,omitempty"`
	Subject           string             `json:"subject"`
	Status            ConversationStatus `json:"status"`
	AssignedAgentId   int                `json:"assigned_agent_id,omitempty"`
	AssignedAgentName string             `json:"assigned_agent_name,omitempty"`
	TicketId          string             `json:"ticket_id,omitempty"`
	LastMessage       string             `json:"last_message,omitempty"`
	LastMessageAt     time.Time          `json:"last_message_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at,omitempty"`
}

type Message struct {
	Id             int       `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       int       `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderRole     Role      `json:"sender_role"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	Timestamp      time.Time `json:"timestamp"`
}
