package replica

import (
	"fmt"
	"time"

	"github.com/ctenopoma/issuer/internal/store"
)

// Typed payload constructors: each (table, action) pair the protocol
// knows has an explicit encoder here, so the rest of the program never
// assembles raw field maps. The wire shape stays the generic JSON
// object older peers understand; only the construction is typed.

// IssueInsert encodes the full row payload for a newly created issue.
func IssueInsert(is *store.Issue) Fields {
	return Fields{
		{Name: "id", Value: is.ID},
		{Name: "title", Value: is.Title},
		{Name: "body", Value: is.Body},
		{Name: "status", Value: is.Status},
		{Name: "created_by", Value: is.CreatedBy},
		{Name: "assignee", Value: is.Assignee},
		{Name: "created_at", Value: is.CreatedAt},
		{Name: "updated_at", Value: is.UpdatedAt},
	}
}

// IssueUpdate encodes the patch for an issue update. The updated_at
// field must reflect the committed row so peers resolve last-writer-
// wins against the same stamp.
func IssueUpdate(is *store.Issue) Fields {
	f := Fields{
		{Name: "title", Value: is.Title},
		{Name: "body", Value: is.Body},
		{Name: "status", Value: is.Status},
		{Name: "assignee", Value: is.Assignee},
		{Name: "updated_at", Value: is.UpdatedAt},
	}
	if is.MilestoneID != nil {
		f = append(f, FieldValue{Name: "milestone_id", Value: *is.MilestoneID})
	} else {
		f = append(f, FieldValue{Name: "milestone_id", Value: nil})
	}
	return f
}

// SoftDelete encodes the is_deleted patch shared by issues, comments
// and milestones. Deletions replicate as ordinary updates.
func SoftDelete(updatedAt string) Fields {
	return Fields{
		{Name: "is_deleted", Value: true},
		{Name: "updated_at", Value: updatedAt},
	}
}

// CommentInsert encodes the full row payload for a new comment.
func CommentInsert(c *store.Comment) Fields {
	return Fields{
		{Name: "id", Value: c.ID},
		{Name: "issue_id", Value: c.IssueID},
		{Name: "body", Value: c.Body},
		{Name: "created_by", Value: c.CreatedBy},
		{Name: "created_at", Value: c.CreatedAt},
		{Name: "updated_at", Value: c.UpdatedAt},
	}
}

// CommentUpdate encodes the patch for an edited comment.
func CommentUpdate(c *store.Comment) Fields {
	return Fields{
		{Name: "body", Value: c.Body},
		{Name: "updated_at", Value: c.UpdatedAt},
	}
}

// MilestoneInsert encodes the full row payload for a new milestone.
func MilestoneInsert(m *store.Milestone) Fields {
	return Fields{
		{Name: "id", Value: m.ID},
		{Name: "title", Value: m.Title},
		{Name: "description", Value: m.Description},
		{Name: "start_date", Value: m.StartDate},
		{Name: "due_date", Value: m.DueDate},
		{Name: "status", Value: m.Status},
		{Name: "created_at", Value: m.CreatedAt},
		{Name: "updated_at", Value: m.UpdatedAt},
	}
}

// MilestoneUpdate encodes the patch for a milestone update.
func MilestoneUpdate(m *store.Milestone) Fields {
	return Fields{
		{Name: "title", Value: m.Title},
		{Name: "description", Value: m.Description},
		{Name: "start_date", Value: m.StartDate},
		{Name: "due_date", Value: m.DueDate},
		{Name: "status", Value: m.Status},
		{Name: "updated_at", Value: m.UpdatedAt},
	}
}

// ReactionToggle encodes one reaction flip. deleted=true asks peers to
// remove the user's reaction, false to add it.
func ReactionToggle(reactedBy, reaction string, deleted bool) Fields {
	return Fields{
		{Name: "reacted_by", Value: reactedBy},
		{Name: "reaction", Value: reaction},
		{Name: "deleted", Value: deleted},
	}
}

// LabelSet encodes a whole-set label replacement for an issue.
func LabelSet(labels []string) Fields {
	// []string marshals to a JSON array; decoded peers see []any.
	return Fields{
		{Name: "labels", Value: labels},
	}
}

// NewRecord stamps a record with the current wall clock.
func NewRecord(origin string, action Action, table string, targetID int64, changes Fields) *Record {
	return &Record{
		Timestamp: time.Now().UnixMilli(),
		Origin:    origin,
		Action:    action,
		Table:     table,
		TargetID:  targetID,
		Changes:   changes,
	}
}

// ---------------------------------------------------------------------------
// Typed decode boundary for the structured payloads
// ---------------------------------------------------------------------------

// reactionChange is the decoded form of a toggle payload.
type reactionChange struct {
	ReactedBy string
	Reaction  string
	Deleted   bool
}

func decodeReactionChange(f Fields) (reactionChange, error) {
	var rc reactionChange
	var ok bool
	if rc.ReactedBy, ok = f.GetString("reacted_by"); !ok || rc.ReactedBy == "" {
		return rc, fmt.Errorf("toggle payload missing reacted_by")
	}
	if rc.Reaction, ok = f.GetString("reaction"); !ok || rc.Reaction == "" {
		return rc, fmt.Errorf("toggle payload missing reaction")
	}
	if v, found := f.Get("deleted"); found {
		b, isBool := v.(bool)
		if !isBool {
			return rc, fmt.Errorf("toggle payload deleted must be a boolean")
		}
		rc.Deleted = b
	}
	return rc, nil
}

// decodeLabelSet extracts the label list from a set payload.
func decodeLabelSet(f Fields) ([]string, error) {
	v, ok := f.Get("labels")
	if !ok {
		return nil, fmt.Errorf("set payload missing labels")
	}

	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		labels := make([]string, 0, len(list))
		for _, item := range list {
			s, isStr := item.(string)
			if !isStr {
				return nil, fmt.Errorf("set payload labels must be strings (got %T)", item)
			}
			labels = append(labels, s)
		}
		return labels, nil
	default:
		return nil, fmt.Errorf("set payload labels must be a list (got %T)", v)
	}
}
