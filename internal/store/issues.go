package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// issueColumns is the select list shared by every issue query.
const issueColumns = `id, title, body, status, created_by, assignee,
	created_at, updated_at, milestone_id, is_deleted`

// CreateIssue inserts a new issue and returns it with its assigned id
// and timestamps filled in.
func (s *Store) CreateIssue(ctx context.Context, title, body, createdBy, assignee string) (*Issue, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if createdBy == "" {
		return nil, fmt.Errorf("created_by is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO issues (title, body, status, created_by, assignee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, body, StatusOpen, createdBy, assignee, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new issue id: %w", err)
	}

	return &Issue{
		ID:        id,
		Title:     title,
		Body:      body,
		Status:    StatusOpen,
		CreatedBy: createdBy,
		Assignee:  assignee,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateIssue overwrites the mutable columns of an issue and bumps
// updated_at. Returns the updated row.
func (s *Store) UpdateIssue(ctx context.Context, id int64, title, body, status, assignee string, milestoneID *int64) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx, `
		UPDATE issues
		SET title = ?, body = ?, status = ?, assignee = ?, milestone_id = ?, updated_at = ?
		WHERE id = ?`,
		title, body, status, assignee, nullableID(milestoneID), now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	return s.getIssueLocked(ctx, id)
}

// SoftDeleteIssue marks an issue deleted without removing the row, so
// the deletion itself replicates as an ordinary update.
func (s *Store) SoftDeleteIssue(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE issues SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return "", fmt.Errorf("failed to delete issue %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", sql.ErrNoRows
	}
	return now, nil
}

// GetIssue returns a single issue by id, including soft-deleted rows.
func (s *Store) GetIssue(ctx context.Context, id int64) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getIssueLocked(ctx, id)
}

func (s *Store) getIssueLocked(ctx context.Context, id int64) (*Issue, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	return scanIssue(row)
}

// IssueFilter configures ListIssues.
type IssueFilter struct {
	// Status filters by issue status (empty = all).
	Status string
	// Assignee filters by assignee (empty = all).
	Assignee string
	// MilestoneID filters by milestone (nil = all).
	MilestoneID *int64
	// IncludeDeleted includes soft-deleted issues.
	IncludeDeleted bool
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ListIssues returns issues matching the filter, most recently updated
// first.
func (s *Store) ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conditions []string
	var args []any

	if !filter.IncludeDeleted {
		conditions = append(conditions, "is_deleted = 0")
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Assignee != "" {
		conditions = append(conditions, "assignee = ?")
		args = append(args, filter.Assignee)
	}
	if filter.MilestoneID != nil {
		conditions = append(conditions, "milestone_id = ?")
		args = append(args, *filter.MilestoneID)
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}
	return issues, nil
}

// TouchIssue bumps an issue's updated_at, used when a dependent row
// (label set, reaction, comment) changes so the issue surfaces as
// recently active.
func (s *Store) TouchIssue(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE issues SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return "", fmt.Errorf("failed to touch issue %d: %w", id, err)
	}
	return now, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*Issue, error) {
	var issue Issue
	var milestoneID sql.NullInt64
	var deleted int

	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Body,
		&issue.Status,
		&issue.CreatedBy,
		&issue.Assignee,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&milestoneID,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	if milestoneID.Valid {
		issue.MilestoneID = &milestoneID.Int64
	}
	issue.IsDeleted = deleted != 0
	return &issue, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
