package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

// Labels are rendered as XML-style tags in the system prompt.
var labelRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// UpsertBlock creates or replaces the block with the given label.
func (s *SQLiteStore) UpsertBlock(ctx context.Context, p BlockParams) (*model.MemoryBlock, error) {
	if !labelRegex.MatchString(p.Label) {
		return nil, fmt.Errorf("invalid block label %q (letters, digits, _ and -; must start with a letter)", p.Label)
	}

	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_blocks (label, content, description, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET
			content = excluded.content,
			description = COALESCE(excluded.description, memory_blocks.description),
			updated_at = excluded.updated_at`,
		p.Label, p.Content, nullString(p.Description), now)
	if err != nil {
		return nil, fmt.Errorf("upsert block: %w", err)
	}

	return s.GetBlock(ctx, p.Label)
}

// GetBlock returns the block with the given label.
func (s *SQLiteStore) GetBlock(ctx context.Context, label string) (*model.MemoryBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT label, content, description, updated_at FROM memory_blocks WHERE label = ?`, label)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("block %q: %w", label, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBlocks returns all blocks ordered by label.
func (s *SQLiteStore) ListBlocks(ctx context.Context) ([]model.MemoryBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, content, description, updated_at FROM memory_blocks ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.MemoryBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// DeleteBlock removes the block with the given label.
func (s *SQLiteStore) DeleteBlock(ctx context.Context, label string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_blocks WHERE label = ?`, label)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("block %q: %w", label, ErrNotFound)
	}
	return nil
}

func scanBlock(row scanner) (model.MemoryBlock, error) {
	var b model.MemoryBlock
	var description sql.NullString
	var updatedAt string
	if err := row.Scan(&b.Label, &b.Content, &description, &updatedAt); err != nil {
		return b, err
	}
	b.Description = description.String
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}
