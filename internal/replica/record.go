// Package replica implements the multi-writer synchronization engine.
//
// Independent processes on different machines share one authoritative
// database file on a network share. Each process works against a local
// copy, captures every committed mutation as a change record in a
// shared outbox directory, replays peers' records in a background loop
// and folds all outstanding records back into the authoritative file
// under an advisory merge lock. There is no server and no network
// protocol; the entire transport is files with eventual read-after-
// write visibility.
package replica

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Action is the kind of mutation a change record describes.
type Action string

const (
	// ActionInsert carries a full row payload.
	ActionInsert Action = "insert"
	// ActionUpdate carries a column-wise patch resolved by
	// last-writer-wins on updated_at.
	ActionUpdate Action = "update"
	// ActionToggle adds or removes one reaction row.
	ActionToggle Action = "toggle"
	// ActionSet replaces an issue's entire label set.
	ActionSet Action = "set"
)

// Record is one durably-recorded local mutation, replicated to peers
// through the outbox. Records are immutable once written.
//
// The wire shape is the generic JSON object older builds produce and
// consume: {timestamp, pc_name, action, table, target_id, changes}.
type Record struct {
	// Timestamp is wall-clock milliseconds at capture time. It orders
	// records from one origin and feeds staleness checks; it is never
	// a conflict key by itself.
	Timestamp int64 `json:"timestamp"`

	// Origin identifies the producing machine. Peers use it to skip
	// their own records.
	Origin string `json:"pc_name"`

	Action Action `json:"action"`

	// Table is the logical collection the record applies to.
	Table string `json:"table"`

	// TargetID identifies the affected aggregate root. For toggle
	// records on relation tables this is the parent entity id, not a
	// relation-row id.
	TargetID int64 `json:"target_id"`

	// Changes is the full insert payload or partial patch.
	Changes Fields `json:"changes"`
}

// Validate checks the fields every consumer relies on.
func (r *Record) Validate() error {
	if r.Origin == "" {
		return fmt.Errorf("pc_name is required")
	}
	if r.Table == "" {
		return fmt.Errorf("table is required")
	}
	if r.TargetID <= 0 {
		return fmt.Errorf("target_id must be positive (got %d)", r.TargetID)
	}
	switch r.Action {
	case ActionInsert, ActionUpdate, ActionToggle, ActionSet:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// FileName returns the outbox file name for this record:
// <timestamp-ms>_<origin>_<8-hex>.json. Millisecond timestamps are 13
// digits for any contemporary date, so lexicographic file-name order
// matches emission order within one origin.
func (r *Record) FileName() string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%d_%s_%s.json", r.Timestamp, r.Origin, suffix)
}

// Encode serializes the record to its wire form.
func (r *Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses and validates a change record.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode change record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change record: %w", err)
	}
	return &r, nil
}

// FieldValue is one named value in a change payload. Scalar values
// decode as string, float64, bool or nil; the label-set payload
// additionally carries a []any of strings.
type FieldValue struct {
	Name  string
	Value any
}

// Fields is an ordered column/value mapping. JSON objects in Go maps
// lose insertion order; change payloads keep it so generated SQL and
// re-encoded records are stable.
type Fields []FieldValue

// Get returns the value for a name.
func (f Fields) Get(name string) (any, bool) {
	for _, fv := range f {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// GetString returns a string-typed value for a name.
func (f Fields) GetString(name string) (string, bool) {
	v, ok := f.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MarshalJSON writes the fields as a JSON object in declaration order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fv.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fv.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("changes must be a JSON object")
	}

	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, FieldValue{Name: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}
