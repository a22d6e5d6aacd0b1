package database

import (
	"database/sql"
	"fmt"
	"time"
)

const conversationColumns = "id, external_id, tenant_id, customer_id, customer_name, customer_email, " +
	"subject, status, assigned_agent_id, assigned_agent_name, ticket_id, last_message, last_message_at, " +
	"created_at, updated_at"

func (db *PgHelpdeskRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, tenant_id, role, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, name, email, tenant_id, role",
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		params.TenantId,
		params.Role,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
		&a.TenantId,
		&a.Role,
	)

	return a, err
}

func (db *PgHelpdeskRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET name = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, name, email, tenant_id, role",
		params.UserId,
		params.Name,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
		&a.TenantId,
		&a.Role,
	)

	return a, err
}

func (db *PgHelpdeskRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, tenant_id, role, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgHelpdeskRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, tenant_id, role, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func scanAccount(row *sql.Row) (Account, error) {
	var (
		a         Account
		updatedAt sql.NullTime
	)
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.TenantId,
		&a.Role,
		&a.CreatedAt,
		&updatedAt,
	)
	a.UpdatedAt = updatedAt.Time

	return a, err
}

func (db *PgHelpdeskRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	row := db.conn.QueryRow(
		"INSERT INTO conversations (external_id, tenant_id, customer_id, customer_name, customer_email, "+
			"subject, status, ticket_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, 'active', NULLIF($7, ''), $8) "+
			"RETURNING "+conversationColumns,
		params.ExternalId,
		params.TenantId,
		params.CustomerId,
		params.CustomerName,
		params.CustomerEmail,
		params.Subject,
		params.TicketId,
		time.Now().UTC(),
	)

	return scanConversation(row)
}

func (db *PgHelpdeskRepository) GetConversationByExternalId(externalId, tenantId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE external_id = $1 AND tenant_id = $2 LIMIT 1",
		externalId,
		tenantId,
	)

	return scanConversation(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		c             Conversation
		agentId       sql.NullInt64
		agentName     sql.NullString
		ticketId      sql.NullString
		lastMessage   sql.NullString
		lastMessageAt sql.NullTime
		updatedAt     sql.NullTime
	)

	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.TenantId,
		&c.CustomerId,
		&c.CustomerName,
		&c.CustomerEmail,
		&c.Subject,
		&c.Status,
		&agentId,
		&agentName,
		&ticketId,
		&lastMessage,
		&lastMessageAt,
		&c.CreatedAt,
		&updatedAt,
	)

	c.AssignedAgentId = int(agentId.Int64)
	c.AssignedAgentName = agentName.String
	c.TicketId = ticketId.String
	c.LastMessage = lastMessage.String
	c.LastMessageAt = lastMessageAt.Time
	c.UpdatedAt = updatedAt.Time

	return c, err
}

func (db *PgHelpdeskRepository) ListConversations(params ListConversationsParams) ([]Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations WHERE tenant_id = $1"
	args := []any{params.TenantId}

	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if params.AgentId != 0 {
		args = append(args, params.AgentId)
		query += fmt.Sprintf(" AND assigned_agent_id = $%d", len(args))
	}
	if params.CustomerId != 0 {
		args = append(args, params.CustomerId)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY last_message_at DESC NULLS LAST LIMIT $%d", len(args))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

// AppendMessage inserts the message and updates the conversation
// summary in one transaction.
func (db *PgHelpdeskRepository) AppendMessage(conversationId int, params AppendMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO messages (conversation_id, sender_id, sender_name, sender_role, content, read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, FALSE, $6) "+
			"RETURNING id, conversation_id, sender_id, sender_name, sender_role, content, read, created_at",
		conversationId,
		params.SenderId,
		params.SenderName,
		params.SenderRole,
		params.Content,
		params.CreatedAt,
	)

	var m Message
	if err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.SenderName,
		&m.SenderRole,
		&m.Content,
		&m.Read,
		&m.CreatedAt,
	); err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(
		"UPDATE conversations SET last_message = $2, last_message_at = $3, updated_at = $3 WHERE id = $1",
		conversationId,
		params.Content,
		params.CreatedAt,
	); err != nil {
		return Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return Message{}, err
	}

	return m, nil
}

func (db *PgHelpdeskRepository) GetMessages(conversationId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, sender_name, sender_role, content, read, created_at "+
			"FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2",
		conversationId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.ConversationId,
			&m.SenderId,
			&m.SenderName,
			&m.SenderRole,
			&m.Content,
			&m.Read,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkMessagesRead flags every message not authored by the reader and
// reports whether anything changed.
func (db *PgHelpdeskRepository) MarkMessagesRead(conversationId, readerId int) (bool, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET read = TRUE WHERE conversation_id = $1 AND sender_id <> $2 AND read = FALSE",
		conversationId,
		readerId,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (db *PgHelpdeskRepository) AssignConversation(conversationId, agentId int, agentName string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET assigned_agent_id = $2, assigned_agent_name = $3, status = 'active', "+
			"updated_at = $4 WHERE id = $1",
		conversationId,
		agentId,
		agentName,
		time.Now().UTC(),
	)

	return err
}

func (db *PgHelpdeskRepository) SetConversationStatus(conversationId int, status string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET status = $2, updated_at = $3 WHERE id = $1",
		conversationId,
		status,
		time.Now().UTC(),
	)

	return err
}

func (db *PgHelpdeskRepository) UpdateTicketStatus(ticketId, status string) error {
	_, err := db.conn.Exec(
		"UPDATE tickets SET status = $2, updated_at = $3 WHERE external_id = $1",
		ticketId,
		status,
		time.Now().UTC(),
	)

	return err
}
