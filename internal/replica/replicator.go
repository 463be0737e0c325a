package replica

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReplicatorConfig tunes the replication loop.
type ReplicatorConfig struct {
	// Interval is how often the outbox is scanned.
	Interval time.Duration

	// OnChange is invoked once after any cycle that applied at least
	// one foreign record. It carries no payload; consumers re-read
	// their view of the local store. May be nil.
	OnChange func()

	// Logger for loop activity.
	Logger *log.Logger
}

// DefaultReplicatorConfig returns the reference tuning.
func DefaultReplicatorConfig() ReplicatorConfig {
	return ReplicatorConfig{
		Interval: 3 * time.Second,
		Logger:   log.New(os.Stderr, "[replica] ", log.LstdFlags),
	}
}

// Replicator is the long-lived background task that replays peers'
// change records into the local working copy. It scans the outbox on
// a fixed interval; an fsnotify watcher on the outbox directory wakes
// it early when a peer drops a record, but correctness never depends
// on the watcher delivering anything.
type Replicator struct {
	outbox  *Outbox
	applier *Applier
	config  ReplicatorConfig

	// applied records file names already processed in this process
	// lifetime. Not persisted: a restart re-scans the outbox, which
	// is safe because Apply is idempotent.
	applied map[string]bool
}

// NewReplicator creates a replicator over the given outbox and
// applier.
func NewReplicator(outbox *Outbox, applier *Applier, config ReplicatorConfig) *Replicator {
	if config.Interval <= 0 {
		config.Interval = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[replica] ", log.LstdFlags)
	}
	return &Replicator{
		outbox:  outbox,
		applier: applier,
		config:  config,
		applied: make(map[string]bool),
	}
}

// Run executes the replication loop until ctx is cancelled. It always
// returns ctx.Err().
func (r *Replicator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.config.Logger.Printf("Warning: outbox watcher unavailable, polling only: %v", err)
		watcher = nil
	} else {
		defer watcher.Close()
	}
	watching := false

	for {
		// The outbox may not exist until the first peer writes;
		// keep trying to attach the watcher.
		if watcher != nil && !watching {
			if err := watcher.Add(r.outbox.Dir()); err == nil {
				watching = true
			}
		}

		var events <-chan fsnotify.Event
		var watchErrs <-chan error
		if watcher != nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			r.runCycle(ctx)

		case event, ok := <-events:
			if !ok {
				watcher = nil
				continue
			}
			if event.Op&fsnotify.Create == 0 || filepath.Ext(event.Name) != ".json" {
				continue
			}
			r.runCycle(ctx)

		case err, ok := <-watchErrs:
			if !ok {
				watcher = nil
				continue
			}
			r.config.Logger.Printf("Watcher error: %v", err)
			watching = false
		}
	}
}

// runCycle performs one scan-and-apply pass and returns how many
// records mutated the store.
func (r *Replicator) runCycle(ctx context.Context) int {
	names, err := r.outbox.List()
	if err != nil {
		// Transient share hiccup; next cycle retries.
		r.config.Logger.Printf("Warning: outbox scan failed: %v", err)
		return 0
	}

	applied := 0
	for _, name := range names {
		if FromOrigin(name, r.outbox.Origin()) {
			continue
		}
		if r.applied[name] {
			continue
		}

		rec, err := r.outbox.Read(name)
		if err != nil {
			if errors.Is(err, ErrBadRecord) {
				// Unparsable content never improves; mark it applied
				// so it cannot block the queue. The merge coordinator
				// disposes of the file itself.
				r.config.Logger.Printf("Warning: skipping malformed record: %v", err)
				r.applied[name] = true
			} else {
				// Transient share hiccup; retry next cycle.
				r.config.Logger.Printf("Warning: could not read record %s: %v", name, err)
			}
			continue
		}

		if r.applier.Apply(ctx, rec) {
			applied++
			r.config.Logger.Printf("Applied remote delta: %s", name)
		}
		r.applied[name] = true
	}

	if applied > 0 && r.config.OnChange != nil {
		r.config.OnChange()
	}
	return applied
}
