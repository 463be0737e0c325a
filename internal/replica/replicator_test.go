package replica

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctenopoma/issuer/internal/store"
)

// replicaFixture wires a replicator over a shared outbox directory,
// with a second outbox posing as a peer machine writing into it.
type replicaFixture struct {
	store *store.Store
	local *Outbox
	peer  *Outbox
	rep   *Replicator

	notifications int
}

func setupReplicator(t *testing.T) *replicaFixture {
	t.Helper()

	tmp := t.TempDir()
	st, err := store.Open(filepath.Join(tmp, "data.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	outboxDir := filepath.Join(tmp, ".sync_temp")
	fx := &replicaFixture{
		store: st,
		local: NewOutbox(outboxDir, "DESKTOP-A", testLogger(t)),
		peer:  NewOutbox(outboxDir, "DESKTOP-B", testLogger(t)),
	}
	fx.rep = NewReplicator(fx.local, NewApplier(st, testLogger(t)), ReplicatorConfig{
		Interval: 50 * time.Millisecond,
		Logger:   testLogger(t),
		OnChange: func() { fx.notifications++ },
	})
	return fx
}

func peerIssue(id int64, title string) Fields {
	return IssueInsert(&store.Issue{
		ID:        id,
		Title:     title,
		Status:    store.StatusOpen,
		CreatedBy: "bob",
		CreatedAt: "2026-08-29T10:00:00Z",
		UpdatedAt: "2026-08-29T10:00:00Z",
	})
}

func TestCycleAppliesForeignRecords(t *testing.T) {
	fx := setupReplicator(t)
	ctx := context.Background()

	if err := fx.peer.Capture(ActionInsert, "issues", 1, peerIssue(1, "from peer")); err != nil {
		t.Fatalf("peer capture failed: %v", err)
	}
	if err := fx.peer.Capture(ActionInsert, "issues", 2, peerIssue(2, "also from peer")); err != nil {
		t.Fatalf("peer capture failed: %v", err)
	}

	if applied := fx.rep.runCycle(ctx); applied != 2 {
		t.Fatalf("expected 2 applied, got %d", applied)
	}

	issues, err := fx.store.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(issues) != 2 {
		t.Errorf("expected 2 issues, got %d", len(issues))
	}

	// One notification per cycle regardless of how many records landed.
	if fx.notifications != 1 {
		t.Errorf("expected 1 notification, got %d", fx.notifications)
	}
}

func TestCycleSkipsOwnRecords(t *testing.T) {
	fx := setupReplicator(t)
	ctx := context.Background()

	if err := fx.local.Capture(ActionInsert, "issues", 1, peerIssue(1, "ours")); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if applied := fx.rep.runCycle(ctx); applied != 0 {
		t.Fatalf("expected 0 applied, got %d", applied)
	}
	if fx.notifications != 0 {
		t.Errorf("expected no notification, got %d", fx.notifications)
	}

	// The record stays in the outbox for the merge coordinator.
	names, _ := fx.local.List()
	if len(names) != 1 {
		t.Errorf("expected own record preserved, outbox has %d", len(names))
	}
}

func TestCycleDeduplicates(t *testing.T) {
	fx := setupReplicator(t)
	ctx := context.Background()

	if err := fx.peer.Capture(ActionInsert, "issues", 1, peerIssue(1, "once")); err != nil {
		t.Fatalf("peer capture failed: %v", err)
	}

	if applied := fx.rep.runCycle(ctx); applied != 1 {
		t.Fatalf("expected 1 applied on first cycle, got %d", applied)
	}
	if applied := fx.rep.runCycle(ctx); applied != 0 {
		t.Errorf("expected 0 applied on second cycle, got %d", applied)
	}
	if fx.notifications != 1 {
		t.Errorf("expected 1 notification total, got %d", fx.notifications)
	}
}

func TestCycleConsumesMalformed(t *testing.T) {
	fx := setupReplicator(t)
	ctx := context.Background()

	if err := os.MkdirAll(fx.local.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(fx.local.Dir(), "1757000000123_DESKTOP-B_deadbeef.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if applied := fx.rep.runCycle(ctx); applied != 0 {
		t.Fatalf("expected 0 applied, got %d", applied)
	}

	// A malformed record is remembered as handled so it cannot wedge
	// the loop; later cycles skip it without re-reading.
	if applied := fx.rep.runCycle(ctx); applied != 0 {
		t.Errorf("expected malformed record skipped, got %d applied", applied)
	}
	if fx.notifications != 0 {
		t.Errorf("expected no notification, got %d", fx.notifications)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := setupReplicator(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.rep.Run(ctx) }()

	// Let the loop attach and tick at least once, then stop it.
	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replicator did not stop after cancel")
	}
}

func TestRunPicksUpPeerRecords(t *testing.T) {
	fx := setupReplicator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fx.rep.Run(ctx) }()

	if err := fx.peer.Capture(ActionInsert, "issues", 1, peerIssue(1, "live")); err != nil {
		t.Fatalf("peer capture failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		issues, err := fx.store.ListIssues(ctx, store.IssueFilter{})
		if err == nil && len(issues) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("record was not applied by the running loop")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
