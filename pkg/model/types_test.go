package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewID_IsNew(t *testing.T) {
	id := NewID("task")
	if !strings.HasPrefix(id, "task@new-") {
		t.Fatalf("NewID(task) = %q, want task@new- prefix", id)
	}
	if !IsNewID(id) {
		t.Fatalf("IsNewID(%q) = false, want true", id)
	}
	if NewID("task") == id {
		t.Fatal("NewID should not repeat")
	}
}

func TestIsNewID(t *testing.T) {
	cases := []struct {
		id     string
		expect bool
	}{
		{"", true},
		{"task@", true},
		{"task@new-01h", true},
		{"task@01h", false},
		{"plain", false},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			if got := IsNewID(tc.id); got != tc.expect {
				t.Fatalf("IsNewID(%q) = %v, want %v", tc.id, got, tc.expect)
			}
		})
	}
}

func TestAssignID_NotNew(t *testing.T) {
	id := AssignID("doc")
	if IsNewID(id) {
		t.Fatalf("assigned id %q must not look new", id)
	}
	if TypeOf(id) != "doc" {
		t.Fatalf("TypeOf(%q) = %q, want doc", id, TypeOf(id))
	}
}

func TestTypeOf_NoType(t *testing.T) {
	if got := TypeOf("plain"); got != "" {
		t.Fatalf("TypeOf(plain) = %q, want empty", got)
	}
}

func TestMutateRequest_WireShape(t *testing.T) {
	req := MutateRequest{Records: []RecordAtts{{ID: "task@1", Attributes: map[string]any{"title": "x"}}}}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"records":[{"id":"task@1","attributes":{"title":"x"}}]}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}
