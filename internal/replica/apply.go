package replica

import (
	"context"
	"log"
	"os"

	"github.com/ctenopoma/issuer/internal/store"
)

// Applier replays change records into a store, implementing the
// conflict-resolution policy. The replication loop and the merge
// coordinator share one implementation so the live path and the
// consolidation path can never diverge in conflict semantics.
//
// Apply is idempotent: replaying the same record twice leaves the
// store in the same state as replaying it once. Concurrent writers'
// records may arrive in any interleaving, so every rule below must
// tolerate reordering.
type Applier struct {
	store  *store.Store
	logger *log.Logger
}

// NewApplier creates an applier over the given store. If logger is
// nil a stderr default is used.
func NewApplier(st *store.Store, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.New(os.Stderr, "[apply] ", log.LstdFlags)
	}
	return &Applier{store: st, logger: logger}
}

// Apply replays one record and reports whether a mutation was
// performed. Malformed or semantically invalid records return false,
// never an error; the caller consumes the record either way so a bad
// record cannot block the queue.
func (a *Applier) Apply(ctx context.Context, rec *Record) bool {
	if rec == nil || rec.Validate() != nil {
		return false
	}

	switch rec.Action {
	case ActionInsert:
		return a.applyInsert(ctx, rec)
	case ActionUpdate:
		return a.applyUpdate(ctx, rec)
	case ActionToggle:
		return a.applyToggle(ctx, rec)
	case ActionSet:
		return a.applySet(ctx, rec)
	default:
		return false
	}
}

// applyInsert writes a full row, re-keying on ID collision.
//
// Two peers can mint the same id offline. If a row with the incoming
// id already exists and was created by a different author, the
// incoming record is re-keyed to MAX(id)+1 instead of overwriting:
// the colliding record survives under a new identity rather than
// silently replacing or being dropped. Same-author re-delivery falls
// through to INSERT OR REPLACE, which makes replay idempotent.
func (a *Applier) applyInsert(ctx context.Context, rec *Record) bool {
	if len(rec.Changes) == 0 {
		return false
	}

	effectiveID := rec.TargetID

	if _, hasID := rec.Changes.Get("id"); hasID {
		existingAuthor, exists, err := a.store.RowAuthor(ctx, rec.Table, rec.TargetID)
		if err != nil {
			a.logger.Printf("Warning: author lookup failed for %s id=%d: %v", rec.Table, rec.TargetID, err)
			return false
		}
		incomingAuthor, _ := rec.Changes.GetString("created_by")

		if exists && incomingAuthor != "" && existingAuthor != incomingAuthor {
			next, err := a.store.NextID(ctx, rec.Table)
			if err != nil {
				a.logger.Printf("Warning: next-id lookup failed for %s: %v", rec.Table, err)
				return false
			}
			a.logger.Printf("ID collision in %s id=%d: reassigning to %d", rec.Table, rec.TargetID, next)
			effectiveID = next
		}
	}

	fields := make([]store.Field, 0, len(rec.Changes))
	for _, fv := range rec.Changes {
		value := fv.Value
		if fv.Name == "id" {
			value = effectiveID
		}
		fields = append(fields, store.Field{Column: fv.Name, Value: value})
	}

	if err := a.store.InsertOrReplace(ctx, rec.Table, fields); err != nil {
		a.logger.Printf("Warning: insert into %s failed: %v", rec.Table, err)
		return false
	}
	return true
}

// applyUpdate patches a row unless the local copy is newer.
//
// updated_at strings are RFC 3339, so lexicographic comparison is
// temporal comparison. A strictly greater local stamp means the
// incoming update already lost last-writer-wins and is discarded;
// that is a normal outcome, not an error.
func (a *Applier) applyUpdate(ctx context.Context, rec *Record) bool {
	if len(rec.Changes) == 0 {
		return false
	}

	if incoming, ok := rec.Changes.GetString("updated_at"); ok {
		local, exists, err := a.store.RowUpdatedAt(ctx, rec.Table, rec.TargetID)
		if err != nil {
			a.logger.Printf("Warning: updated_at lookup failed for %s id=%d: %v", rec.Table, rec.TargetID, err)
			return false
		}
		if exists && local > incoming {
			a.logger.Printf("LWW skip: %s id=%d local=%s > incoming=%s", rec.Table, rec.TargetID, local, incoming)
			return false
		}
	}

	fields := make([]store.Field, 0, len(rec.Changes))
	for _, fv := range rec.Changes {
		fields = append(fields, store.Field{Column: fv.Name, Value: fv.Value})
	}

	if err := a.store.UpdateFields(ctx, rec.Table, rec.TargetID, fields); err != nil {
		a.logger.Printf("Warning: update of %s id=%d failed: %v", rec.Table, rec.TargetID, err)
		return false
	}
	return true
}

// applyToggle adds or removes one reaction row. The insert side is
// duplicate-safe and the delete side tolerates absence, so replay and
// reordering cannot corrupt the relation.
func (a *Applier) applyToggle(ctx context.Context, rec *Record) bool {
	change, err := decodeReactionChange(rec.Changes)
	if err != nil {
		a.logger.Printf("Warning: bad toggle payload for %s id=%d: %v", rec.Table, rec.TargetID, err)
		return false
	}

	if change.Deleted {
		if err := a.store.RemoveReaction(ctx, rec.Table, rec.TargetID, change.ReactedBy, change.Reaction); err != nil {
			a.logger.Printf("Warning: reaction removal failed: %v", err)
			return false
		}
		return true
	}

	if err := a.store.AddReaction(ctx, rec.Table, rec.TargetID, change.ReactedBy, change.Reaction, store.NowStamp()); err != nil {
		a.logger.Printf("Warning: reaction insert failed: %v", err)
		return false
	}
	return true
}

// applySet replaces an issue's entire label set. Whole-set semantics:
// two concurrent sets are not merged, the later-applied one wins.
func (a *Applier) applySet(ctx context.Context, rec *Record) bool {
	if rec.Table != "issue_labels" {
		a.logger.Printf("Warning: set action on unsupported table %q", rec.Table)
		return false
	}

	labels, err := decodeLabelSet(rec.Changes)
	if err != nil {
		a.logger.Printf("Warning: bad set payload for issue %d: %v", rec.TargetID, err)
		return false
	}

	if err := a.store.ReplaceIssueLabels(ctx, rec.TargetID, labels); err != nil {
		a.logger.Printf("Warning: label replacement for issue %d failed: %v", rec.TargetID, err)
		return false
	}
	return true
}
