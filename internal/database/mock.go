package database

import (
	"github.com/stretchr/testify/mock"
)

type MockHelpdeskRepository struct {
	mock.Mock
}

func (m *MockHelpdeskRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockHelpdeskRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockHelpdeskRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockHelpdeskRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockHelpdeskRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockHelpdeskRepository) GetConversationByExternalId(externalId, tenantId string) (Conversation, error) {
	args := m.Called(externalId, tenantId)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockHelpdeskRepository) ListConversations(params ListConversationsParams) ([]Conversation, error) {
	args := m.Called(params)
	return args.Get(0).([]Conversation), args.Error(1)
}

func (m *MockHelpdeskRepository) AppendMessage(conversationId int, params AppendMessageParams) (Message, error) {
	args := m.Called(conversationId, params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockHelpdeskRepository) GetMessages(conversationId, limit int) ([]Message, error) {
	args := m.Called(conversationId, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockHelpdeskRepository) MarkMessagesRead(conversationId, readerId int) (bool, error) {
	args := m.Called(conversationId, readerId)
	return args.Bool(0), args.Error(1)
}

func (m *MockHelpdeskRepository) AssignConversation(conversationId, agentId int, agentName string) error {
	args := m.Called(conversationId, agentId, agentName)
	return args.Error(0)
}

func (m *MockHelpdeskRepository) SetConversationStatus(conversationId int, status string) error {
	args := m.Called(conversationId, status)
	return args.Error(0)
}

func (m *MockHelpdeskRepository) UpdateTicketStatus(ticketId, status string) error {
	args := m.Called(ticketId, status)
	return args.Error(0)
}
