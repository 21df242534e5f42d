package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

const messageColumns = `id, role, content, tool_calls, tool_call_ref, session_id, created_at`

// AddMessage appends a message to the conversation history.
func (s *SQLiteStore) AddMessage(ctx context.Context, p AddMessageParams) (*model.Message, error) {
	if !model.ValidRoles[p.Role] {
		return nil, fmt.Errorf("invalid role %q (valid: user, assistant, tool)", p.Role)
	}

	now := time.Now().UTC()
	id := s.newID()

	var toolCallsJSON *string
	if len(p.ToolCalls) > 0 {
		b, err := json.Marshal(p.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("encode tool calls: %w", err)
		}
		str := string(b)
		toolCallsJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Role, p.Content, toolCallsJSON, nullString(p.ToolCallRef), nullString(p.SessionID), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &model.Message{
		ID:          id,
		Role:        p.Role,
		Content:     p.Content,
		ToolCalls:   p.ToolCalls,
		ToolCallRef: p.ToolCallRef,
		SessionID:   p.SessionID,
		CreatedAt:   now,
	}, nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AllMessages returns every persisted message, oldest first.
func (s *SQLiteStore) AllMessages(ctx context.Context) ([]model.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY created_at ASC, rowid ASC`)
}

// SessionMessages returns the messages of one session, oldest first.
func (s *SQLiteStore) SessionMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
}

// SearchMessages finds messages whose content contains query, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE content LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, likePattern(query), limit)
}

// CountMessages returns the number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// DeleteMessages removes exactly the given messages in one transaction and
// returns how many rows were deleted.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Stay well under SQLite's bound-parameter limit.
	const batch = 500
	deleted := 0
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		args := make([]interface{}, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE id IN (`+placeholders(len(args))+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("delete messages: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(row scanner) (model.Message, error) {
	var m model.Message
	var toolCalls, toolCallRef, sessionID sql.NullString
	var createdAt string

	if err := row.Scan(&m.ID, &m.Role, &m.Content, &toolCalls, &toolCallRef, &sessionID, &createdAt); err != nil {
		return m, err
	}

	m.CreatedAt = parseTime(createdAt)
	m.ToolCallRef = toolCallRef.String
	m.SessionID = sessionID.String
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
			return m, fmt.Errorf("decode tool calls for %s: %w", m.ID, err)
		}
	}
	return m, nil
}
