package replica

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctenopoma/issuer/internal/store"
)

// setupStore opens a fresh database in a temp directory.
func setupStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// foreignRecord builds a record the way a peer's capture produces it,
// going through the wire codec so values carry JSON types.
func foreignRecord(t *testing.T, action Action, table string, targetID int64, changes Fields) *Record {
	t.Helper()

	rec := NewRecord("DESKTOP-B", action, table, targetID, changes)
	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("failed to encode record: %v", err)
	}
	decoded, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	return decoded
}

func TestApplyInsert(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	changes := IssueInsert(&store.Issue{
		ID:        1,
		Title:     "remote issue",
		Body:      "made elsewhere",
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T10:00:00Z",
		UpdatedAt: "2026-08-29T10:00:00Z",
	})
	rec := foreignRecord(t, ActionInsert, "issues", 1, changes)

	if !applier.Apply(ctx, rec) {
		t.Fatal("expected insert to apply")
	}

	issue, err := st.GetIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if issue.Title != "remote issue" || issue.CreatedBy != "bob" {
		t.Errorf("unexpected row: %+v", issue)
	}
}

func TestApplyInsertIdempotent(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	changes := IssueInsert(&store.Issue{
		ID:        1,
		Title:     "remote issue",
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T10:00:00Z",
		UpdatedAt: "2026-08-29T10:00:00Z",
	})
	rec := foreignRecord(t, ActionInsert, "issues", 1, changes)

	// Re-delivery of the same record by the same author must converge
	// to one row, not duplicate or re-key.
	for i := 0; i < 3; i++ {
		if !applier.Apply(ctx, rec) {
			t.Fatalf("apply %d failed", i)
		}
	}

	issues, err := st.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Errorf("expected 1 issue after replay, got %d", len(issues))
	}
}

func TestApplyInsertIDCollision(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	// Local writer mints id 1.
	local, err := st.CreateIssue(ctx, "local issue", "", "alice", "")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if local.ID != 1 {
		t.Fatalf("expected local id 1, got %d", local.ID)
	}

	// An offline peer minted the same id for a different issue.
	changes := IssueInsert(&store.Issue{
		ID:        1,
		Title:     "colliding issue",
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T10:00:00Z",
		UpdatedAt: "2026-08-29T10:00:00Z",
	})
	rec := foreignRecord(t, ActionInsert, "issues", 1, changes)

	if !applier.Apply(ctx, rec) {
		t.Fatal("expected colliding insert to apply")
	}

	// Both issues survive: the local one untouched, the incoming one
	// under the next free id.
	kept, err := st.GetIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetIssue(1) failed: %v", err)
	}
	if kept.Title != "local issue" || kept.CreatedBy != "alice" {
		t.Errorf("local row was clobbered: %+v", kept)
	}

	rekeyed, err := st.GetIssue(ctx, 2)
	if err != nil {
		t.Fatalf("GetIssue(2) failed: %v", err)
	}
	if rekeyed.Title != "colliding issue" || rekeyed.CreatedBy != "bob" {
		t.Errorf("unexpected re-keyed row: %+v", rekeyed)
	}
}

func TestApplyUpdateLastWriterWins(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	seed := IssueInsert(&store.Issue{
		ID:        1,
		Title:     "original",
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T09:00:00Z",
		UpdatedAt: "2026-08-29T09:00:00Z",
	})
	if !applier.Apply(ctx, foreignRecord(t, ActionInsert, "issues", 1, seed)) {
		t.Fatal("seed insert failed")
	}

	newer := foreignRecord(t, ActionUpdate, "issues", 1, Fields{
		{Name: "title", Value: "newer title"},
		{Name: "updated_at", Value: "2026-08-29T11:00:00Z"},
	})
	older := foreignRecord(t, ActionUpdate, "issues", 1, Fields{
		{Name: "title", Value: "older title"},
		{Name: "updated_at", Value: "2026-08-29T10:00:00Z"},
	})

	if !applier.Apply(ctx, newer) {
		t.Fatal("expected newer update to apply")
	}
	if applier.Apply(ctx, older) {
		t.Error("expected older update to lose last-writer-wins")
	}

	issue, err := st.GetIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if issue.Title != "newer title" {
		t.Errorf("expected title %q, got %q", "newer title", issue.Title)
	}
	if issue.UpdatedAt != "2026-08-29T11:00:00Z" {
		t.Errorf("expected updated_at to keep the winning stamp, got %q", issue.UpdatedAt)
	}
}

func TestApplyUpdateOrderIndependent(t *testing.T) {
	// Applying the same pair of updates in either order must converge
	// on the same final row.
	run := func(t *testing.T, first, second Fields) *store.Issue {
		t.Helper()
		st := setupStore(t)
		applier := NewApplier(st, testLogger(t))
		ctx := context.Background()

		seed := IssueInsert(&store.Issue{
			ID:        1,
			Title:     "original",
			Status:    store.StatusOpen,
			CreatedBy: "bob",
			CreatedAt: "2026-08-29T09:00:00Z",
			UpdatedAt: "2026-08-29T09:00:00Z",
		})
		applier.Apply(ctx, foreignRecord(t, ActionInsert, "issues", 1, seed))
		applier.Apply(ctx, foreignRecord(t, ActionUpdate, "issues", 1, first))
		applier.Apply(ctx, foreignRecord(t, ActionUpdate, "issues", 1, second))

		issue, err := st.GetIssue(ctx, 1)
		if err != nil {
			t.Fatalf("GetIssue failed: %v", err)
		}
		return issue
	}

	early := Fields{
		{Name: "title", Value: "from early writer"},
		{Name: "updated_at", Value: "2026-08-29T10:00:00Z"},
	}
	late := Fields{
		{Name: "title", Value: "from late writer"},
		{Name: "updated_at", Value: "2026-08-29T10:30:00Z"},
	}

	a := run(t, early, late)
	b := run(t, late, early)

	if a.Title != b.Title || a.UpdatedAt != b.UpdatedAt {
		t.Errorf("orders diverged: %q@%s vs %q@%s", a.Title, a.UpdatedAt, b.Title, b.UpdatedAt)
	}
	if a.Title != "from late writer" {
		t.Errorf("expected the later stamp to win, got %q", a.Title)
	}
}

func TestApplyUpdateSoftDelete(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	seed := IssueInsert(&store.Issue{
		ID:        1,
		Title:     "doomed",
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T09:00:00Z",
		UpdatedAt: "2026-08-29T09:00:00Z",
	})
	applier.Apply(ctx, foreignRecord(t, ActionInsert, "issues", 1, seed))

	del := foreignRecord(t, ActionUpdate, "issues", 1, SoftDelete("2026-08-29T10:00:00Z"))
	if !applier.Apply(ctx, del) {
		t.Fatal("expected soft delete to apply")
	}

	issue, err := st.GetIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if !issue.IsDeleted {
		t.Error("expected issue to be marked deleted")
	}

	// Deleted rows are hidden from the default listing but the row
	// itself survives.
	issues, err := st.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected deleted issue hidden from listing, got %d rows", len(issues))
	}
}

func TestApplyToggle(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	if _, err := st.CreateIssue(ctx, "reactable", "", "alice", ""); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	add := foreignRecord(t, ActionToggle, "issue_reactions", 1, ReactionToggle("bob", "thumbs_up", false))
	if !applier.Apply(ctx, add) {
		t.Fatal("expected reaction add to apply")
	}
	has, err := st.HasReaction(ctx, "issue_reactions", 1, "bob", "thumbs_up")
	if err != nil || !has {
		t.Fatalf("expected reaction present, has=%v err=%v", has, err)
	}

	// Re-applying the add must not duplicate.
	applier.Apply(ctx, add)
	reactions, err := st.ListReactions(ctx, "issue_reactions", 1)
	if err != nil {
		t.Fatalf("ListReactions failed: %v", err)
	}
	if len(reactions) != 1 {
		t.Errorf("expected 1 reaction, got %d", len(reactions))
	}

	remove := foreignRecord(t, ActionToggle, "issue_reactions", 1, ReactionToggle("bob", "thumbs_up", true))
	if !applier.Apply(ctx, remove) {
		t.Fatal("expected reaction removal to apply")
	}
	has, err = st.HasReaction(ctx, "issue_reactions", 1, "bob", "thumbs_up")
	if err != nil || has {
		t.Fatalf("expected reaction gone, has=%v err=%v", has, err)
	}
}

func TestApplySet(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	if _, err := st.CreateIssue(ctx, "labeled", "", "alice", ""); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	first := foreignRecord(t, ActionSet, "issue_labels", 1, LabelSet([]string{"bug", "urgent"}))
	if !applier.Apply(ctx, first) {
		t.Fatal("expected label set to apply")
	}

	// A later set replaces the whole set, it does not merge.
	second := foreignRecord(t, ActionSet, "issue_labels", 1, LabelSet([]string{"wontfix"}))
	if !applier.Apply(ctx, second) {
		t.Fatal("expected second label set to apply")
	}

	labels, err := st.IssueLabels(ctx, 1)
	if err != nil {
		t.Fatalf("IssueLabels failed: %v", err)
	}
	if len(labels) != 1 || labels[0] != "wontfix" {
		t.Errorf("expected [wontfix], got %v", labels)
	}
}

func TestApplyRejectsBadRecords(t *testing.T) {
	st := setupStore(t)
	applier := NewApplier(st, testLogger(t))
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *Record
	}{
		{name: "nil record", rec: nil},
		{
			name: "invalid header",
			rec:  &Record{Action: ActionInsert, Table: "issues"},
		},
		{
			name: "empty insert payload",
			rec:  NewRecord("DESKTOP-B", ActionInsert, "issues", 1, nil),
		},
		{
			name: "unsynced table",
			rec: NewRecord("DESKTOP-B", ActionInsert, "sqlite_master", 1, Fields{
				{Name: "id", Value: int64(1)},
			}),
		},
		{
			name: "toggle without reaction",
			rec: NewRecord("DESKTOP-B", ActionToggle, "issue_reactions", 1, Fields{
				{Name: "reacted_by", Value: "bob"},
			}),
		},
		{
			name: "set on non-label table",
			rec:  NewRecord("DESKTOP-B", ActionSet, "issues", 1, LabelSet([]string{"x"})),
		},
		{
			name: "set without labels",
			rec:  NewRecord("DESKTOP-B", ActionSet, "issue_labels", 1, Fields{{Name: "other", Value: "x"}}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if applier.Apply(ctx, tt.rec) {
				t.Error("expected apply to report no mutation")
			}
		})
	}
}
