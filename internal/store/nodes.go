package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

const nodeColumns = `id, content, summary, source, tags, access_count, created_at, last_accessed`

// CreateNode stores a new memory node.
func (s *SQLiteStore) CreateNode(ctx context.Context, p NodeParams) (*model.Node, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, fmt.Errorf("node content is required")
	}
	source := p.Source
	if source == "" {
		source = model.SourceConversation
	}

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, _ := json.Marshal(p.Tags)
		str := string(b)
		tagsJSON = &str
	}

	now := time.Now().UTC()
	id := s.newID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, content, nullString(p.Summary), source, tagsJSON, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}

	return &model.Node{
		ID:           id,
		Content:      content,
		Summary:      p.Summary,
		Source:       source,
		Tags:         p.Tags,
		CreatedAt:    now,
		LastAccessed: now,
	}, nil
}

// GetNode returns the node and records the read: access_count is incremented
// and last_accessed set to now in the same statement.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE memory_nodes SET access_count = access_count + 1, last_accessed = ?
		 WHERE id = ?
		 RETURNING `+nodeColumns,
		formatTime(time.Now()), id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListRecentNodes returns the newest nodes, optionally filtered by source.
func (s *SQLiteStore) ListRecentNodes(ctx context.Context, limit int, source string) ([]model.Node, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + nodeColumns + ` FROM memory_nodes`
	args := []interface{}{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	return s.queryNodes(ctx, query, args...)
}

// nodesExist returns ErrNotFound unless every id names a stored node.
func (s *SQLiteStore) nodesExist(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memory_nodes WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) queryNodes(ctx context.Context, query string, args ...interface{}) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func scanNode(row scanner, extra ...interface{}) (model.Node, error) {
	var n model.Node
	var summary, tags sql.NullString
	var createdAt, lastAccessed string

	dest := []interface{}{&n.ID, &n.Content, &summary, &n.Source, &tags, &n.AccessCount, &createdAt, &lastAccessed}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return n, err
	}

	n.Summary = summary.String
	n.CreatedAt = parseTime(createdAt)
	n.LastAccessed = parseTime(lastAccessed)
	if tags.Valid && tags.String != "" {
		json.Unmarshal([]byte(tags.String), &n.Tags)
	}
	return n, nil
}
