package store

import (
	"context"
	"fmt"
)

// Reaction tables keyed by their parent-entity column. The toggle
// action in change records addresses reactions through these two
// tables only.
var reactionParentColumn = map[string]string{
	"issue_reactions":   "issue_id",
	"comment_reactions": "comment_id",
}

// AddReaction inserts a reaction row if the (target, user, reaction)
// triple is not already present. Duplicate-safe.
func (s *Store) AddReaction(ctx context.Context, table string, targetID int64, reactedBy, reaction, createdAt string) error {
	parent, ok := reactionParentColumn[table]
	if !ok {
		return fmt.Errorf("table %q does not hold reactions", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s, reacted_by, reaction, created_at) VALUES (?, ?, ?, ?)",
		table, parent)
	if _, err := s.conn.ExecContext(ctx, query, targetID, reactedBy, reaction, createdAt); err != nil {
		return fmt.Errorf("failed to add reaction to %s: %w", table, err)
	}
	return nil
}

// RemoveReaction deletes a reaction row if present. No-op if absent.
func (s *Store) RemoveReaction(ctx context.Context, table string, targetID int64, reactedBy, reaction string) error {
	parent, ok := reactionParentColumn[table]
	if !ok {
		return fmt.Errorf("table %q does not hold reactions", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = ? AND reacted_by = ? AND reaction = ?",
		table, parent)
	if _, err := s.conn.ExecContext(ctx, query, targetID, reactedBy, reaction); err != nil {
		return fmt.Errorf("failed to remove reaction from %s: %w", table, err)
	}
	return nil
}

// HasReaction reports whether the (target, user, reaction) triple exists.
func (s *Store) HasReaction(ctx context.Context, table string, targetID int64, reactedBy, reaction string) (bool, error) {
	parent, ok := reactionParentColumn[table]
	if !ok {
		return false, fmt.Errorf("table %q does not hold reactions", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s = ? AND reacted_by = ? AND reaction = ?",
		table, parent)
	if err := s.conn.QueryRowContext(ctx, query, targetID, reactedBy, reaction).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check reaction in %s: %w", table, err)
	}
	return count > 0, nil
}

// ListReactions returns all reactions for one target, grouped order by
// reaction then user.
func (s *Store) ListReactions(ctx context.Context, table string, targetID int64) ([]*Reaction, error) {
	parent, ok := reactionParentColumn[table]
	if !ok {
		return nil, fmt.Errorf("table %q does not hold reactions", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		"SELECT %s, reacted_by, reaction, created_at FROM %s WHERE %s = ? ORDER BY reaction, reacted_by",
		parent, table, parent)
	rows, err := s.conn.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions from %s: %w", table, err)
	}
	defer rows.Close()

	var reactions []*Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.TargetID, &r.ReactedBy, &r.Reaction, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		reactions = append(reactions, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reactions: %w", err)
	}
	return reactions, nil
}
