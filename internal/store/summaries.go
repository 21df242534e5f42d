package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

// AddSummary appends a compaction summary. Summaries are never edited.
func (s *SQLiteStore) AddSummary(ctx context.Context, p AddSummaryParams) (*model.Summary, error) {
	if strings.TrimSpace(p.Summary) == "" {
		return nil, fmt.Errorf("summary text is required")
	}

	now := time.Now().UTC()
	id := s.newID()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, summary, range_start, range_end, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Summary, nullString(p.RangeStart), nullString(p.RangeEnd), p.TokenCount, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}

	return &model.Summary{
		ID:         id,
		Summary:    p.Summary,
		RangeStart: p.RangeStart,
		RangeEnd:   p.RangeEnd,
		TokenCount: p.TokenCount,
		CreatedAt:  now,
	}, nil
}

// ListSummaries returns all summaries, oldest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary, range_start, range_end, token_count, created_at
		 FROM summaries ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Summary
	for rows.Next() {
		var sum model.Summary
		var start, end sql.NullString
		var createdAt string
		if err := rows.Scan(&sum.ID, &sum.Summary, &start, &end, &sum.TokenCount, &createdAt); err != nil {
			return nil, err
		}
		sum.RangeStart = start.String
		sum.RangeEnd = end.String
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}
