package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateMilestone inserts a new milestone and returns it.
func (s *Store) CreateMilestone(ctx context.Context, title, description, startDate, dueDate string) (*Milestone, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO milestones (title, description, start_date, due_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, description, startDate, dueDate, MilestonePlanned, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new milestone id: %w", err)
	}

	return &Milestone{
		ID:          id,
		Title:       title,
		Description: description,
		StartDate:   startDate,
		DueDate:     dueDate,
		Status:      MilestonePlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateMilestone overwrites the mutable columns of a milestone.
func (s *Store) UpdateMilestone(ctx context.Context, id int64, title, description, startDate, dueDate, status string) (*Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx, `
		UPDATE milestones
		SET title = ?, description = ?, start_date = ?, due_date = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		title, description, startDate, dueDate, status, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update milestone %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}

	return s.getMilestoneLocked(ctx, id)
}

// SoftDeleteMilestone marks a milestone deleted.
func (s *Store) SoftDeleteMilestone(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowStamp()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE milestones SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return "", fmt.Errorf("failed to delete milestone %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", sql.ErrNoRows
	}
	return now, nil
}

// GetMilestone returns a single milestone by id.
func (s *Store) GetMilestone(ctx context.Context, id int64) (*Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMilestoneLocked(ctx, id)
}

func (s *Store) getMilestoneLocked(ctx context.Context, id int64) (*Milestone, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, description, COALESCE(start_date, ''), COALESCE(due_date, ''),
		       status, created_at, updated_at, is_deleted
		FROM milestones WHERE id = ?`, id)
	return scanMilestone(row)
}

// ListMilestones returns non-deleted milestones ordered by due date.
func (s *Store) ListMilestones(ctx context.Context) ([]*Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, description, COALESCE(start_date, ''), COALESCE(due_date, ''),
		       status, created_at, updated_at, is_deleted
		FROM milestones
		WHERE is_deleted = 0
		ORDER BY due_date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}
	return milestones, nil
}

func scanMilestone(row rowScanner) (*Milestone, error) {
	var m Milestone
	var deleted int
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.StartDate, &m.DueDate,
		&m.Status, &m.CreatedAt, &m.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	m.IsDeleted = deleted != 0
	return &m, nil
}
