package session

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestValidDataKey(t *testing.T) {
	cases := []struct {
		key   string
		valid bool
	}{
		{"progress", true},
		{"my-key_1", true},
		{"", false},
		{"has space", false},
		{"has.dot", false},
		{"__proto__", false},
		{"constructor", false},
		{"prototype", false},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			if got := ValidDataKey(tc.key); got != tc.valid {
				t.Errorf("ValidDataKey(%q) = %v, want %v", tc.key, got, tc.valid)
			}
		})
	}
}

func TestSetDataRejectsInvalidKey(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, CreateParams{ToolName: "t", Timeout: time.Minute})

	if _, err := m.SetData(ctx, s.SessionID, "__proto__", "x", time.Minute); err == nil {
		t.Fatalf("expected SetData with a blocked key to fail")
	}
}

func TestSetDataAndGetDataRoundTrip(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, CreateParams{ToolName: "t", Timeout: time.Minute})

	if _, err := m.SetData(ctx, s.SessionID, "count", 42, time.Minute); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	value, _, ok, err := m.GetData(ctx, s.SessionID, "count")
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !ok {
		t.Fatalf("expected key %q to be found", "count")
	}
	if string(value) != "42" {
		t.Errorf("GetData(count) = %s, want 42", value)
	}
}

func TestGetDataWithEmptyKeyReturnsWholeMap(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, CreateParams{ToolName: "t", Timeout: time.Minute})

	if _, err := m.SetData(ctx, s.SessionID, "a", 1, time.Minute); err != nil {
		t.Fatalf("SetData a: %v", err)
	}
	if _, err := m.SetData(ctx, s.SessionID, "b", 2, time.Minute); err != nil {
		t.Fatalf("SetData b: %v", err)
	}

	_, all, ok, err := m.GetData(ctx, s.SessionID, "")
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(all) != 2 {
		t.Fatalf("GetData(\"\") returned %d keys, want 2", len(all))
	}
}

func TestSetDataRejectsWhenAccumulatedDataExceedsCap(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, CreateParams{ToolName: "t", Timeout: time.Minute})

	big := strings.Repeat("a", maxAccumulatedDataBytes)
	if _, err := m.SetData(ctx, s.SessionID, "big", big, time.Minute); err == nil {
		t.Fatalf("expected an oversized accumulated-data write to be rejected")
	}
}

func TestSetDataOnTerminalSessionFails(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	s, _ := m.Create(ctx, CreateParams{ToolName: "t", Timeout: time.Minute})
	if _, err := m.UpdateState(ctx, s.SessionID, StatusActive, time.Minute, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := m.Cancel(ctx, s.SessionID, "done"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := m.SetData(ctx, s.SessionID, "x", 1, time.Minute); err == nil {
		t.Fatalf("expected SetData on a cancelled session to fail")
	}
}
