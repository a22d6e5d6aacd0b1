package database

type HelpdeskRepository interface {
	CreateAccount(params CreateAccountParams) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversationByExternalId(externalId, tenantId string) (Conversation, error)
	ListConversations(params ListConversationsParams) ([]Conversation, error)
	AppendMessage(conversationId int, params AppendMessageParams) (Message, error)
	GetMessages(conversationId, limit int) ([]Message, error)
	MarkMessagesRead(conversationId, readerId int) (bool, error)
	AssignConversation(conversationId, agentId int, agentName string) error
	SetConversationStatus(conversationId int, status string) error
	UpdateTicketStatus(ticketId, status string) error
}
