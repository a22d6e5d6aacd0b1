package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/jdelgado/go-helpdesk/internal/database"
	"github.com/jdelgado/go-helpdesk/internal/realtime"
	"github.com/jdelgado/go-helpdesk/internal/types"
	"github.com/teris-io/shortid"
)

type CreateConversationRequest struct {
	Subject  string `json:"subject"`
	TicketId string `json:"ticket_id,omitempty"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type AssignConversationRequest struct {
	AgentId int `json:"agent_id"`
}

func (s *HelpdeskApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *HelpdeskApp) createConversation(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Subject == "" {
		req.Subject = "New Conversation"
	}

	sid, err := shortid.Generate()
	if err != nil {
		s.log.Println("generate conversation id:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.CreateConversation(database.CreateConversationParams{
		ExternalId:    sid,
		TenantId:      account.TenantId,
		CustomerId:    account.Id,
		CustomerName:  account.Name,
		CustomerEmail: account.EmailAddress,
		Subject:       req.Subject,
		TicketId:      req.TicketId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, conversationFromRecord(conv))
}

func (s *HelpdeskApp) listConversations(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.ListConversationsParams{
		TenantId: account.TenantId,
		Status:   r.URL.Query().Get("status"),
	}

	if agentIdStr := r.URL.Query().Get("agent_id"); agentIdStr != "" {
		agentId, err := strconv.Atoi(agentIdStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		params.AgentId = agentId
	}

	if customerIdStr := r.URL.Query().Get("customer_id"); customerIdStr != "" {
		customerId, err := strconv.Atoi(customerIdStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		params.CustomerId = customerId
	}

	// customers only ever see their own conversations
	if !types.Role(account.Role).IsStaff() {
		params.CustomerId = account.Id
	}

	dbConversations, err := s.db.ListConversations(params)
	if err != nil {
		s.log.Println("list conversations:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversations := make([]types.Conversation, 0, len(dbConversations))
	for _, conv := range dbConversations {
		conversations = append(conversations, conversationFromRecord(conv))
	}

	s.writeJson(w, http.StatusOK, conversations)
}

func (s *HelpdeskApp) getConversation(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.conversationForRequest(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conversationFromRecord(conv))
}

func (s *HelpdeskApp) getConversationMessages(w http.ResponseWriter, r *http.Request) {
	_, conv, errResp := s.conversationForRequest(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.GetMessages(conv.Id, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, types.Message{
			Id:             m.Id,
			ConversationId: conv.ExternalId,
			SenderId:       m.SenderId,
			SenderName:     m.SenderName,
			SenderRole:     types.Role(m.SenderRole),
			Content:        m.Content,
			Read:           m.Read,
			Timestamp:      m.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *HelpdeskApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, conv, err := s.gateway.SendMessage(realtime.SendMessageParams{
		ConversationId: r.PathValue("id"),
		TenantId:       account.TenantId,
		SenderId:       account.Id,
		SenderName:     account.Name,
		SenderRole:     types.Role(account.Role),
		Content:        req.Content,
	})
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, realtime.ErrEmptyMessage):
			errResp = NewBadRequestError()
		case errors.Is(err, realtime.ErrConversationNotFound):
			errResp = NewNotFoundError()
		default:
			s.log.Println("send message:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]any{
		"message":      msg,
		"conversation": conv,
	})
}

func (s *HelpdeskApp) markConversationRead(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.gateway.MarkMessagesRead(r.PathValue("id"), account.TenantId, account.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, realtime.ErrConversationNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("mark messages read:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *HelpdeskApp) assignConversation(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !types.Role(account.Role).IsStaff() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req AssignConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	agent, err := s.db.GetAccountById(req.AgentId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if agent.TenantId != account.TenantId || !types.Role(agent.Role).IsStaff() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.gateway.AssignConversation(r.PathValue("id"), account.TenantId, agent.Id, agent.Name)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, realtime.ErrConversationNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("assign conversation:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conv)
}

func (s *HelpdeskApp) closeConversation(w http.ResponseWriter, r *http.Request) {
	s.setConversationStatus(w, r, true)
}

func (s *HelpdeskApp) reopenConversation(w http.ResponseWriter, r *http.Request) {
	s.setConversationStatus(w, r, false)
}

func (s *HelpdeskApp) setConversationStatus(w http.ResponseWriter, r *http.Request, closed bool) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !types.Role(account.Role).IsStaff() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var (
		conv types.Conversation
		err  error
	)
	if closed {
		conv, err = s.gateway.CloseConversation(r.PathValue("id"), account.TenantId)
	} else {
		conv, err = s.gateway.ReopenConversation(r.PathValue("id"), account.TenantId)
	}
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, realtime.ErrConversationNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("set conversation status:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conv)
}

// conversationForRequest resolves the {id} path value to a
// conversation in the caller's tenant. Customers can only reach their
// own conversations.
func (s *HelpdeskApp) conversationForRequest(r *http.Request) (database.Account, database.Conversation, *ApiError) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		return database.Account{}, database.Conversation{}, errResp
	}

	externalId := r.PathValue("id")
	if externalId == "" {
		return database.Account{}, database.Conversation{}, NewBadRequestError()
	}

	conv, err := s.db.GetConversationByExternalId(externalId, account.TenantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Account{}, database.Conversation{}, NewNotFoundError()
		}
		return database.Account{}, database.Conversation{}, NewInternalServerError(err)
	}

	if !types.Role(account.Role).IsStaff() && conv.CustomerId != account.Id {
		return database.Account{}, database.Conversation{}, NewForbiddenError()
	}

	return account, conv, nil
}

func conversationFromRecord(conv database.Conversation) types.Conversation {
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

func (s *HelpdeskApp) serveWs(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.currentAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := realtime.NewClient(userFromAccount(account), conn, s.hub, s.log)

	s.hub.RegisterClient(client)
	go client.Write()
	go client.Read()
}
