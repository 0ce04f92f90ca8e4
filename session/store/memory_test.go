package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opentool-run/interact/state"
)

func newState(id string) *state.State {
	return &state.State{
		SessionID:       id,
		Status:          state.StatusIdle,
		AccumulatedData: map[string]json.RawMessage{},
	}
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	s := newState("abc")
	if err := m.Set(ctx, "abc", s, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := m.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.SessionID != "abc" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "abc")
	}
}

func TestMemoryGetReturnsClonesNotSharedPointers(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	s := newState("abc")
	if err := m.Set(ctx, "abc", s, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	first, _, _ := m.Get(ctx, "abc")
	first.SessionID = "mutated"

	second, _, _ := m.Get(ctx, "abc")
	if second.SessionID != "abc" {
		t.Errorf("mutating one Get() result leaked into another")
	}
}

func TestMemoryGetMissingKey(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 0)
	defer m.Close()
	_, ok, err := m.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a missing key")
	}
}

func TestMemoryDeleteFiresOnDeleted(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	var deletedID string
	m.OnDeleted(func(id string) { deletedID = id })

	s := newState("abc")
	_ = m.Set(ctx, "abc", s, time.Minute)

	ok, err := m.Delete(ctx, "abc")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatalf("expected Delete to report ok=true")
	}
	if deletedID != "abc" {
		t.Errorf("OnDeleted callback id = %q, want %q", deletedID, "abc")
	}

	if ok, _ := m.Delete(ctx, "abc"); ok {
		t.Errorf("expected a second Delete of the same key to report ok=false")
	}
}

func TestMemoryTTLSweepFiresOnExpired(t *testing.T) {
	m := NewMemory(5*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	expired := make(chan string, 1)
	m.OnExpired(func(id string) { expired <- id })

	s := newState("abc")
	if err := m.Set(ctx, "abc", s, 5*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case id := <-expired:
		if id != "abc" {
			t.Errorf("OnExpired id = %q, want %q", id, "abc")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for OnExpired")
	}

	if _, ok, _ := m.Get(ctx, "abc"); ok {
		t.Errorf("expected the key to be gone after TTL sweep")
	}
}

func TestMemoryRefreshesTTLOnSet(t *testing.T) {
	m := NewMemory(5*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	s := newState("abc")
	if err := m.Set(ctx, "abc", s, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := m.Set(ctx, "abc", s, 200*time.Millisecond); err != nil {
		t.Fatalf("refresh Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "abc"); !ok {
		t.Fatalf("expected the refreshed key to still be present")
	}
}

func TestMemoryEnforcesMaxKeys(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 2)
	defer m.Close()
	ctx := context.Background()

	if err := m.Set(ctx, "a", newState("a"), time.Minute); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := m.Set(ctx, "b", newState("b"), time.Minute); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	if err := m.Set(ctx, "c", newState("c"), time.Minute); err == nil {
		t.Fatalf("expected a 3rd key to be rejected by MaxKeys=2")
	}
}

func TestMemoryCount(t *testing.T) {
	m := NewMemory(10*time.Millisecond, 0)
	defer m.Close()
	ctx := context.Background()

	_ = m.Set(ctx, "a", newState("a"), time.Minute)
	_ = m.Set(ctx, "b", newState("b"), time.Minute)

	n, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
