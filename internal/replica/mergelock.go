package replica

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// ErrLockBusy is returned when the merge lock cannot be acquired
// within the retry budget. The caller must not consolidate; the
// outbox stays untouched for the next attempt.
var ErrLockBusy = errors.New("merge lock busy")

// MergeLock is a cooperative, non-reentrant advisory lock shared
// across processes and machines. It is a single marker file in the
// authoritative location whose content names the holder's machine;
// presence plus modification time is the entire protocol surface.
// It gates only the consolidation phase, never ordinary reads or
// writes.
type MergeLock struct {
	path    string
	machine string

	retries    int
	retryDelay time.Duration
	staleAfter time.Duration

	logger *log.Logger
}

// NewMergeLock creates a lock at the given marker path for the given
// machine identity. Zero tuning values fall back to the reference
// protocol: 10 attempts, 500 ms apart, 60 s staleness threshold.
func NewMergeLock(path, machine string, retries int, retryDelay, staleAfter time.Duration, logger *log.Logger) *MergeLock {
	if retries <= 0 {
		retries = 10
	}
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	if staleAfter <= 0 {
		staleAfter = 60 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[mergelock] ", log.LstdFlags)
	}
	return &MergeLock{
		path:       path,
		machine:    machine,
		retries:    retries,
		retryDelay: retryDelay,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Acquire takes the lock, retrying on contention. A marker whose
// modification time is older than the staleness threshold was left by
// a crashed holder and is evicted. Returns ErrLockBusy when the retry
// budget is exhausted.
func (l *MergeLock) Acquire() error {
	for attempt := 0; attempt < l.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(l.retryDelay)
		}

		if info, err := os.Stat(l.path); err == nil {
			if time.Since(info.ModTime()) > l.staleAfter {
				l.logger.Printf("Evicting stale merge lock (age %s)", time.Since(info.ModTime()).Round(time.Second))
				if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
					l.logger.Printf("Warning: failed to evict stale lock: %v", err)
					continue
				}
			} else {
				continue
			}
		}

		// O_EXCL makes creation atomic: exactly one contender wins.
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return fmt.Errorf("failed to create merge lock: %w", err)
		}

		if _, err := f.WriteString(l.machine); err != nil {
			_ = f.Close()
			_ = os.Remove(l.path)
			return fmt.Errorf("failed to write merge lock: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(l.path)
			return fmt.Errorf("failed to close merge lock: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w: gave up after %d attempts", ErrLockBusy, l.retries)
}

// Release deletes the marker file. Safe to call without holding the
// lock; absence is not an error.
func (l *MergeLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Printf("Warning: failed to release merge lock: %v", err)
	}
}

// Holder reads the marker content, returning the holder machine name
// or empty when unlocked.
func (l *MergeLock) Holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return string(data)
}
