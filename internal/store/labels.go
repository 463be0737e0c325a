package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ReplaceIssueLabels replaces the entire label set of an issue. Label
// rows are created on demand; existing associations are dropped first.
// This is whole-set replacement, not a diff - concurrent replacements
// are resolved by whichever applies last.
func (s *Store) ReplaceIssueLabels(ctx context.Context, issueID int64, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM issue_labels WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to clear labels for issue %d: %w", issueID, err)
	}

	for _, name := range normalizeLabels(labels) {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO labels (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("failed to ensure label %q: %w", name, err)
		}

		var labelID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM labels WHERE name = ?`, name).Scan(&labelID); err != nil {
			return fmt.Errorf("failed to look up label %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO issue_labels (issue_id, label_id) VALUES (?, ?)`,
			issueID, labelID); err != nil {
			return fmt.Errorf("failed to link label %q to issue %d: %w", name, issueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label replacement: %w", err)
	}
	return nil
}

// IssueLabels returns the label names of an issue, sorted.
func (s *Store) IssueLabels(ctx context.Context, issueID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT l.name FROM labels l
		JOIN issue_labels il ON il.label_id = l.id
		WHERE il.issue_id = ?
		ORDER BY l.name`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

// AllLabels returns every known label name, sorted.
func (s *Store) AllLabels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

// normalizeLabels trims, drops empties and deduplicates, returning a
// sorted list so replacement order is deterministic.
func normalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
