package replica

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrBadRecord marks a record file whose content cannot be decoded.
// Unlike transient read errors these are permanent: consumers mark
// the record consumed instead of retrying it forever.
var ErrBadRecord = errors.New("malformed change record")

// Outbox is the shared, hidden directory holding undelivered change
// records, one file per record. It is an unordered bag; file names
// are timestamp-prefixed so lexicographic order approximates emission
// order.
type Outbox struct {
	dir    string
	origin string
	logger *log.Logger
}

// NewOutbox creates an outbox rooted at dir, tagging captured records
// with the given origin identity. The directory is created lazily on
// first capture. If logger is nil a stderr default is used.
func NewOutbox(dir, origin string, logger *log.Logger) *Outbox {
	if logger == nil {
		logger = log.New(os.Stderr, "[outbox] ", log.LstdFlags)
	}
	return &Outbox{dir: dir, origin: origin, logger: logger}
}

// Dir returns the outbox directory path.
func (o *Outbox) Dir() string {
	return o.dir
}

// Origin returns the identity captured records are tagged with.
func (o *Outbox) Origin() string {
	return o.origin
}

// ensure creates the outbox directory if missing and marks it hidden
// where the platform supports it.
func (o *Outbox) ensure() error {
	if _, err := os.Stat(o.dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create outbox directory: %w", err)
	}
	if err := hideDir(o.dir); err != nil {
		o.logger.Printf("Warning: failed to hide outbox directory: %v", err)
	}
	return nil
}

// Capture serializes one committed mutation to a uniquely named file
// in the outbox. Replication is best-effort: callers treat a returned
// error as diagnostic only and never fail the triggering command.
func (o *Outbox) Capture(action Action, table string, targetID int64, changes Fields) error {
	rec := NewRecord(o.origin, action, table, targetID, changes)
	return o.put(rec)
}

func (o *Outbox) put(rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to capture invalid record: %w", err)
	}
	if err := o.ensure(); err != nil {
		return err
	}

	data, err := rec.Encode()
	if err != nil {
		return err
	}

	path := filepath.Join(o.dir, rec.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write change record: %w", err)
	}
	return nil
}

// List returns the names of all record files sorted lexicographically,
// which approximates emission order. A missing directory yields an
// empty list, not an error.
func (o *Outbox) List() ([]string, error) {
	entries, err := os.ReadDir(o.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read loads and decodes one record by file name. Decode failures
// wrap ErrBadRecord; read failures do not.
func (o *Outbox) Read(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(o.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", name, err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRecord, name, err)
	}
	return rec, nil
}

// Remove deletes one consumed record file.
func (o *Outbox) Remove(name string) error {
	if err := os.Remove(filepath.Join(o.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record %s: %w", name, err)
	}
	return nil
}

// FromOrigin reports whether a record file name was produced by the
// given origin. Names follow <timestamp>_<origin>_<suffix>.json, so
// this is decidable without reading the file.
func FromOrigin(name, origin string) bool {
	return strings.Contains(name, "_"+origin+"_")
}
