package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// blockedKeys are rejected even when they match keyPattern; they are only
// meaningful for runtimes whose dictionaries share a prototype chain, but
// the engine enforces them anyway for portability of stored data
// (spec.md §9 "Prototype-pollution mitigation").
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// ValidDataKey reports whether key is an acceptable AccumulatedData key
// (spec.md invariant 4).
func ValidDataKey(key string) bool {
	return key != "" && keyPattern.MatchString(key) && !blockedKeys[key]
}

// SetData sanitizes key and value (a JSON round-trip drops functions,
// symbols, and cycles) and stores it in the session's AccumulatedData,
// enforcing the per-key-set 10 KB cap on the whole map.
func (m *Manager) SetData(ctx context.Context, id, key string, value any, ttl time.Duration) (*State, error) {
	if !ValidDataKey(key) {
		return nil, fmt.Errorf("session: invalid accumulated-data key %q", key)
	}
	sanitized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("session: value is not JSON-serializable: %w", err)
	}

	var result *State
	werr := m.withLock(id, func() error {
		s, ok, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return sessionNotFound(id)
		}
		if s.Status.IsTerminal() {
			return fmt.Errorf("session: %q is terminal", id)
		}

		next := map[string]json.RawMessage{}
		for k, v := range s.AccumulatedData {
			next[k] = v
		}
		next[key] = sanitized

		total, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if len(total) > maxAccumulatedDataBytes {
			return fmt.Errorf("session: accumulated data would exceed %d bytes", maxAccumulatedDataBytes)
		}
		s.AccumulatedData = next
		s.Metadata.LastActivityAt = nowMillis()

		if err := m.store.Set(ctx, id, s, ttl); err != nil {
			return err
		}
		result = s
		return nil
	})
	if werr != nil {
		return nil, werr
	}
	return result, nil
}

// GetData returns the raw JSON for key, or the full map when key is
// empty. Values are returned as stored; callers must not mutate the
// returned map's contents across calls (session.State.Clone already
// isolated it from live engine state at the Get boundary).
func (m *Manager) GetData(ctx context.Context, id, key string) (json.RawMessage, map[string]json.RawMessage, bool, error) {
	s, ok, err := m.Get(ctx, id)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	if key == "" {
		return nil, s.AccumulatedData, true, nil
	}
	v, ok := s.AccumulatedData[key]
	return v, nil, ok, nil
}
