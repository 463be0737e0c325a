package store

import (
	"context"
	"testing"
)

func TestReactionToggleCycle(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	issue, err := st.CreateIssue(ctx, "reactable", "", "alice", "")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	if err := st.AddReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up", NowStamp()); err != nil {
		t.Fatalf("AddReaction failed: %v", err)
	}
	has, err := st.HasReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up")
	if err != nil || !has {
		t.Fatalf("expected reaction present, has=%v err=%v", has, err)
	}

	// Adding the same reaction again is a no-op, not a duplicate.
	if err := st.AddReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up", NowStamp()); err != nil {
		t.Fatalf("duplicate AddReaction failed: %v", err)
	}
	reactions, err := st.ListReactions(ctx, "issue_reactions", issue.ID)
	if err != nil {
		t.Fatalf("ListReactions failed: %v", err)
	}
	if len(reactions) != 1 {
		t.Errorf("expected 1 reaction, got %d", len(reactions))
	}

	if err := st.RemoveReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up"); err != nil {
		t.Fatalf("RemoveReaction failed: %v", err)
	}
	has, err = st.HasReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up")
	if err != nil || has {
		t.Fatalf("expected reaction gone, has=%v err=%v", has, err)
	}

	// Removing an absent reaction is tolerated.
	if err := st.RemoveReaction(ctx, "issue_reactions", issue.ID, "bob", "thumbs_up"); err != nil {
		t.Errorf("RemoveReaction on absent row failed: %v", err)
	}
}

func TestReactionsPerUserAndKind(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	issue, err := st.CreateIssue(ctx, "popular", "", "alice", "")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Distinct users and distinct reaction kinds coexist.
	pairs := []struct{ user, kind string }{
		{"bob", "thumbs_up"},
		{"carol", "thumbs_up"},
		{"bob", "heart"},
	}
	for _, p := range pairs {
		if err := st.AddReaction(ctx, "issue_reactions", issue.ID, p.user, p.kind, NowStamp()); err != nil {
			t.Fatalf("AddReaction(%s, %s) failed: %v", p.user, p.kind, err)
		}
	}

	reactions, err := st.ListReactions(ctx, "issue_reactions", issue.ID)
	if err != nil {
		t.Fatalf("ListReactions failed: %v", err)
	}
	if len(reactions) != 3 {
		t.Errorf("expected 3 reactions, got %d", len(reactions))
	}
}

func TestCommentReactions(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	issue, err := st.CreateIssue(ctx, "discussed", "", "alice", "")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	comment, err := st.AddComment(ctx, issue.ID, "insightful", "bob")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	if err := st.AddReaction(ctx, "comment_reactions", comment.ID, "carol", "heart", NowStamp()); err != nil {
		t.Fatalf("AddReaction failed: %v", err)
	}
	has, err := st.HasReaction(ctx, "comment_reactions", comment.ID, "carol", "heart")
	if err != nil || !has {
		t.Fatalf("expected comment reaction present, has=%v err=%v", has, err)
	}
}

func TestReactionRejectsUnknownTable(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	if err := st.AddReaction(ctx, "issues", 1, "bob", "thumbs_up", NowStamp()); err == nil {
		t.Error("expected rejection of non-reaction table")
	}
	if _, err := st.HasReaction(ctx, "labels", 1, "bob", "thumbs_up"); err == nil {
		t.Error("expected rejection of non-reaction table")
	}
}
