package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddComment inserts a comment on an issue and returns it.
func (s *Store) AddComment(ctx context.Context, issueID int64, body, createdBy string) (*Comment, error) {
	if body == "" {
		return nil, fmt.Errorf("body is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO comments (issue_id, body, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		issueID, body, createdBy, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment to issue %d: %w", issueID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new comment id: %w", err)
	}

	return &Comment{
		ID:        id,
		IssueID:   issueID,
		Body:      body,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateComment replaces a comment's body and bumps updated_at.
func (s *Store) UpdateComment(ctx context.Context, id int64, body string) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`, body, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	return s.getCommentLocked(ctx, id)
}

// SoftDeleteComment marks a comment deleted so the deletion replicates.
func (s *Store) SoftDeleteComment(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE comments SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return "", fmt.Errorf("failed to delete comment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", sql.ErrNoRows
	}
	return now, nil
}

// GetComment returns a single comment by id.
func (s *Store) GetComment(ctx context.Context, id int64) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCommentLocked(ctx, id)
}

func (s *Store) getCommentLocked(ctx context.Context, id int64) (*Comment, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, issue_id, body, created_by, created_at, updated_at, is_deleted
		FROM comments WHERE id = ?`, id)
	return scanComment(row)
}

// ListComments returns the non-deleted comments of an issue, oldest
// first.
func (s *Store) ListComments(ctx context.Context, issueID int64) ([]*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, issue_id, body, created_by, created_at, updated_at, is_deleted
		FROM comments
		WHERE issue_id = ? AND is_deleted = 0
		ORDER BY created_at ASC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}

// CommentIssueID returns the parent issue of a comment.
func (s *Store) CommentIssueID(ctx context.Context, commentID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issueID int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT issue_id FROM comments WHERE id = ?`, commentID).Scan(&issueID)
	if err != nil {
		return 0, fmt.Errorf("failed to find issue for comment %d: %w", commentID, err)
	}
	return issueID, nil
}

func scanComment(row rowScanner) (*Comment, error) {
	var c Comment
	var deleted int
	err := row.Scan(&c.ID, &c.IssueID, &c.Body, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	c.IsDeleted = deleted != 0
	return &c, nil
}
