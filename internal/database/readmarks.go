package database

import (
	"context"
	"fmt"
	"time"
)

// UpsertReadMark records that userID read articleID at readAt. Repeated
// calls only move read_at. The insert-or-update is one statement, so two
// concurrent marks for the same pair cannot collide on the primary key.
// A missing article or user yields ErrForeignKey.
func (db *DB) UpsertReadMark(ctx context.Context, userID string, articleID int64, readAt time.Time) (*ReadMark, error) {
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO read_marks (user_id, article_id, read_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, article_id) DO UPDATE SET read_at = excluded.read_at
		RETURNING user_id, article_id, read_at`,
		userID, articleID, formatTime(readAt),
	)

	var m ReadMark
	var at string
	if err := row.Scan(&m.UserID, &m.ArticleID, &at); err != nil {
		return nil, fmt.Errorf("upserting read mark: %w", classify(err))
	}
	t, err := parseTime(at)
	if err != nil {
		return nil, err
	}
	m.ReadAt = t
	return &m, nil
}

// GetReadArticleIDs returns every article ID the user has marked read.
func (db *DB) GetReadArticleIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT article_id FROM read_marks WHERE user_id = ? ORDER BY article_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying read marks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetReadMarks returns the user's read marks, most recent first.
func (db *DB) GetReadMarks(ctx context.Context, userID string) ([]ReadMark, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, article_id, read_at FROM read_marks WHERE user_id = ? ORDER BY read_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying read marks: %w", err)
	}
	defer rows.Close()

	var marks []ReadMark
	for rows.Next() {
		var m ReadMark
		var at string
		if err := rows.Scan(&m.UserID, &m.ArticleID, &at); err != nil {
			return nil, err
		}
		if m.ReadAt, err = parseTime(at); err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}
