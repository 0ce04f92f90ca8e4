package session

import (
	"context"
	"time"

	"github.com/opentool-run/interact/protocol"
)

// AddTurn appends a turn to the session's history, evicting the oldest
// entry first if the history is already at MaxHistory (spec.md invariant
// 3). If prompt is non-nil the session's CurrentPrompt is set to it;
// AddTurn does not itself change Status — spec.md §4.6 treats the
// history write and the WaitingUser transition as two separate manager
// calls, so callers follow this with UpdateState. ttl is the session's
// configured timeout, re-applied on this write.
func (m *Manager) AddTurn(ctx context.Context, id string, prompt *protocol.Prompt, response *protocol.Response, ttl time.Duration) (*State, error) {
	var result *State
	err := m.withLock(id, func() error {
		s, ok, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return sessionNotFound(id)
		}
		if s.Status.IsTerminal() {
			return protocol.ErrAlreadyCancelled(id)
		}

		if len(s.History) >= MaxHistory {
			s.History = s.History[1:]
		}
		turn := protocol.Turn{
			TurnID:    len(s.History),
			Prompt:    prompt,
			Response:  response,
			Timestamp: nowMillis(),
		}
		s.History = append(s.History, turn)
		if prompt != nil {
			s.CurrentPrompt = prompt
		}
		s.Metadata.LastActivityAt = nowMillis()

		if err := m.store.Set(ctx, id, s, ttl); err != nil {
			return err
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(LifecycleEvent{Type: EventUpdated, SessionID: id, State: result})
	return result, nil
}
