package database

import "time"

type Account struct {
	Id           int
	Name         string
	EmailAddress string
	PasswordHash string
	TenantId     string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id                int
	ExternalId        string
	TenantId          string
	CustomerId        int
	CustomerName      string
	CustomerEmail     string
	Subject           string
	Status            string
	AssignedAgentId   int
	AssignedAgentName string
	TicketId          string
	LastMessage       string
	LastMessageAt     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Message struct {
	Id             int
	ConversationId int
	SenderId       int
	SenderName     string
	SenderRole     string
	Content        string
	Read           bool
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
	TenantId     string
	Role         string
}

type UpdateAccountParams struct {
	UserId       int
	Name         string
	PasswordHash string
}

type CreateConversationParams struct {
	ExternalId    string
	TenantId      string
	CustomerId    int
	CustomerName  string
	CustomerEmail string
	Subject       string
	TicketId      string
}

type AppendMessageParams struct {
	SenderId   int
	SenderName string
	SenderRole string
	Content    string
	CreatedAt  time.Time
}

type ListConversationsParams struct {
	TenantId   string
	Status     string
	AgentId    int
	CustomerId int
	Limit      int
}
