package replica

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ctenopoma/issuer/internal/store"
)

// Merger folds all outstanding change records into the authoritative
// database file. It runs at process shutdown and on demand.
//
// The protocol is crash-safe by construction: the authoritative file
// is never edited in place. A private snapshot receives the replay,
// then atomically replaces the master, and only after a successful
// replace are consumed records deleted. A crash at any earlier point
// leaves the master byte-identical to its pre-merge state and the
// outbox intact.
type Merger struct {
	outbox *Outbox
	lock   *MergeLock

	// masterPath is the authoritative database on the share.
	masterPath string
	// localPath is this machine's working copy, promoted to seed the
	// master when none exists yet.
	localPath string
	// workDir holds the private temporary snapshot.
	workDir string

	logger *log.Logger
}

// NewMerger creates a merge coordinator. If logger is nil a stderr
// default is used.
func NewMerger(outbox *Outbox, lock *MergeLock, masterPath, localPath, workDir string, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &Merger{
		outbox:     outbox,
		lock:       lock,
		masterPath: masterPath,
		localPath:  localPath,
		workDir:    workDir,
		logger:     logger,
	}
}

// Merge consolidates the outbox into the authoritative file. With an
// empty outbox it returns immediately without touching the lock.
// ErrLockBusy means another machine is consolidating; every record
// stays in place for the next attempt.
func (m *Merger) Merge(ctx context.Context) error {
	names, err := m.outbox.List()
	if err != nil {
		return fmt.Errorf("failed to scan outbox: %w", err)
	}
	if len(names) == 0 {
		return nil
	}

	if err := m.lock.Acquire(); err != nil {
		if errors.Is(err, ErrLockBusy) {
			return err
		}
		return fmt.Errorf("failed to acquire merge lock: %w", err)
	}
	// Released unconditionally so a failed merge never wedges peers.
	defer m.lock.Release()

	if err := m.run(ctx, names); err != nil {
		m.logger.Printf("Merge failed, outbox preserved: %v", err)
		return err
	}
	return nil
}

func (m *Merger) run(ctx context.Context, names []string) error {
	tempPath := filepath.Join(m.workDir, "merge_tmp.db")
	_ = os.Remove(tempPath)

	if err := m.snapshot(tempPath); err != nil {
		return err
	}

	consumed, err := m.replay(ctx, tempPath, names)
	if err != nil {
		return err
	}

	if err := m.publish(tempPath); err != nil {
		return err
	}

	// Garbage collection only after the replace landed. A record
	// whose apply was attempted is consumed even when it changed
	// nothing - a discarded LWW loser must not block forever.
	for _, name := range consumed {
		if err := m.outbox.Remove(name); err != nil {
			m.logger.Printf("Warning: %v", err)
		}
	}
	_ = os.Remove(tempPath)

	m.logger.Printf("Merge complete: %d records consolidated", len(consumed))
	return nil
}

// snapshot copies the authoritative file to the private temp path.
// When no master exists yet the local working copy seeds it - the
// bootstrap case for the very first writer.
func (m *Merger) snapshot(tempPath string) error {
	src := m.masterPath
	if _, err := os.Stat(src); os.IsNotExist(err) {
		if _, err := os.Stat(m.localPath); err != nil {
			return fmt.Errorf("neither master nor local database exists to snapshot")
		}
		src = m.localPath
	}

	if err := store.CopyFile(src, tempPath); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// replay opens the snapshot as an independent store and applies every
// record in sorted order through the same applier the replication
// loop uses. Returns the names whose apply was attempted.
func (m *Merger) replay(ctx context.Context, tempPath string, names []string) ([]string, error) {
	st, err := store.Open(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	applier := NewApplier(st, m.logger)
	consumed := make([]string, 0, len(names))

	for _, name := range names {
		rec, err := m.outbox.Read(name)
		if err != nil {
			if errors.Is(err, ErrBadRecord) {
				// Malformed content is consumed so it never blocks.
				m.logger.Printf("Warning: discarding malformed record: %v", err)
				consumed = append(consumed, name)
			} else {
				m.logger.Printf("Warning: leaving unreadable record for retry: %v", err)
			}
			continue
		}

		if !applier.Apply(ctx, rec) {
			m.logger.Printf("Record %s applied no mutation during merge", name)
		}
		consumed = append(consumed, name)
	}

	// Close checkpoints the WAL; the snapshot file is now
	// self-contained and copyable.
	if err := st.Close(); err != nil {
		return nil, fmt.Errorf("failed to close snapshot: %w", err)
	}
	return consumed, nil
}

// publish replaces the authoritative file with the replayed snapshot.
// The snapshot is first copied next to the master so the final step
// is a same-directory rename; the old master stays valid until the
// rename completes.
func (m *Merger) publish(tempPath string) error {
	staging := m.masterPath + ".merge"
	if err := store.CopyFile(tempPath, staging); err != nil {
		return fmt.Errorf("failed to stage merged database: %w", err)
	}
	if err := os.Rename(staging, m.masterPath); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to publish merged database: %w", err)
	}
	return nil
}

// BootstrapLocal seeds the local working copy from the authoritative
// file when no local copy exists yet. A missing master too is fine:
// the process starts empty and the first merge promotes its copy.
func BootstrapLocal(masterPath, localPath string) error {
	if _, err := os.Stat(localPath); err == nil {
		return nil
	}
	if _, err := os.Stat(masterPath); os.IsNotExist(err) {
		return nil
	}
	if err := store.CopyFile(masterPath, localPath); err != nil {
		return fmt.Errorf("failed to bootstrap local copy: %w", err)
	}
	return nil
}
