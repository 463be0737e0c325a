package replica

import (
	"encoding/json"
	"regexp"
	"testing"
)

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{
			name: "valid insert",
			record: Record{
				Timestamp: 1757000000000,
				Origin:    "DESKTOP-A",
				Action:    ActionInsert,
				Table:     "issues",
				TargetID:  1,
				Changes:   Fields{{Name: "id", Value: float64(1)}},
			},
			wantErr: false,
		},
		{
			name: "missing origin",
			record: Record{
				Action:   ActionUpdate,
				Table:    "issues",
				TargetID: 1,
			},
			wantErr: true,
		},
		{
			name: "missing table",
			record: Record{
				Origin:   "DESKTOP-A",
				Action:   ActionUpdate,
				TargetID: 1,
			},
			wantErr: true,
		},
		{
			name: "zero target id",
			record: Record{
				Origin: "DESKTOP-A",
				Action: ActionUpdate,
				Table:  "issues",
			},
			wantErr: true,
		},
		{
			name: "unknown action",
			record: Record{
				Origin:   "DESKTOP-A",
				Action:   Action("upsert"),
				Table:    "issues",
				TargetID: 1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecordFileName(t *testing.T) {
	rec := &Record{
		Timestamp: 1757000000123,
		Origin:    "DESKTOP-A",
		Action:    ActionInsert,
		Table:     "issues",
		TargetID:  1,
	}

	pattern := regexp.MustCompile(`^1757000000123_DESKTOP-A_[0-9a-f]{8}\.json$`)

	name := rec.FileName()
	if !pattern.MatchString(name) {
		t.Errorf("file name %q does not match <ts>_<origin>_<8-hex>.json", name)
	}

	// The random suffix must make successive names distinct.
	if other := rec.FileName(); other == name {
		t.Errorf("expected distinct file names, got %q twice", name)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := &Record{
		Timestamp: 1757000000123,
		Origin:    "DESKTOP-A",
		Action:    ActionUpdate,
		Table:     "issues",
		TargetID:  7,
		Changes: Fields{
			{Name: "title", Value: "new title"},
			{Name: "updated_at", Value: "2026-08-29T10:00:00Z"},
		},
	}

	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if got.Origin != rec.Origin || got.Action != rec.Action || got.Table != rec.Table || got.TargetID != rec.TargetID {
		t.Errorf("round trip changed header: got %+v", got)
	}
	if title, _ := got.Changes.GetString("title"); title != "new title" {
		t.Errorf("expected title %q, got %q", "new title", title)
	}
}

func TestDecodeRecordRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{{{"},
		{name: "empty object", data: "{}"},
		{name: "missing target", data: `{"timestamp":1,"pc_name":"A","action":"update","table":"issues","changes":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord([]byte(tt.data)); err == nil {
				t.Errorf("expected error for %q", tt.data)
			}
		})
	}
}

func TestFieldsPreserveOrder(t *testing.T) {
	input := `{"zulu":1,"alpha":"x","mike":null,"bravo":true}`

	var f Fields
	if err := json.Unmarshal([]byte(input), &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	wantOrder := []string{"zulu", "alpha", "mike", "bravo"}
	if len(f) != len(wantOrder) {
		t.Fatalf("expected %d fields, got %d", len(wantOrder), len(f))
	}
	for i, name := range wantOrder {
		if f[i].Name != name {
			t.Errorf("field %d: expected %q, got %q", i, name, f[i].Name)
		}
	}

	out, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != input {
		t.Errorf("re-encoded object changed:\n  in:  %s\n  out: %s", input, out)
	}
}

func TestFieldsGet(t *testing.T) {
	f := Fields{
		{Name: "status", Value: "CLOSED"},
		{Name: "assignee", Value: "alice"},
	}

	if v, _ := f.GetString("status"); v != "CLOSED" {
		t.Errorf("expected status CLOSED, got %q", v)
	}
	if v, _ := f.GetString("assignee"); v != "alice" {
		t.Errorf("expected assignee alice, got %q", v)
	}
	if _, ok := f.Get("missing"); ok {
		t.Errorf("expected missing key to report absent")
	}
	if _, ok := f.GetString("nothing"); ok {
		t.Errorf("expected missing key to report absent")
	}
}

func TestFromOrigin(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		origin string
		want   bool
	}{
		{name: "own record", file: "1757000000123_DESKTOP-A_ab12cd34.json", origin: "DESKTOP-A", want: true},
		{name: "foreign record", file: "1757000000123_DESKTOP-B_ab12cd34.json", origin: "DESKTOP-A", want: false},
		{name: "origin is substring of another", file: "1757000000123_DESKTOP-AB_ab12cd34.json", origin: "DESKTOP-A", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromOrigin(tt.file, tt.origin); got != tt.want {
				t.Errorf("FromOrigin(%q, %q) = %v, want %v", tt.file, tt.origin, got, tt.want)
			}
		})
	}
}
