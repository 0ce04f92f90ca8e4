package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/session/store"
)

const (
	// MinTimeout/MaxTimeout clamp a caller-requested session TTL
	// (spec.md §3.3).
	MinTimeout = time.Second
	MaxTimeout = time.Hour

	// DefaultGraceDelay is how long a terminal session is kept around
	// before destruction, so the caller can poll final state once.
	DefaultGraceDelay = 5 * time.Second

	maxCallerContextBytes   = 10 * 1024
	maxAccumulatedDataBytes = 10 * 1024
	maxSessionIDBytes       = 256
)

// EventType names the lifecycle events a Manager emits.
type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventWaiting   EventType = "waiting"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventErrored   EventType = "errored"
	EventExpired   EventType = "expired"
)

// LifecycleEvent is published to Manager subscribers.
type LifecycleEvent struct {
	Type      EventType
	SessionID string
	State     *State
}

// Manager owns session CRUD, the state machine, per-session timers, and
// input sanitization on top of a pluggable store.Store (spec.md §4.5).
type Manager struct {
	store       store.Store
	maxSessions int
	graceDelay  time.Duration

	locks   sync.Map // session id -> *sync.Mutex, serializes read-modify-write per id
	timers  sync.Map // session id -> *time.Timer, cleanup timers
	closed  chan struct{}
	closeMu sync.Mutex

	subsMu sync.Mutex
	subs   []func(LifecycleEvent)
}

// NewManager constructs a Manager over st, admitting at most maxSessions
// concurrent sessions and holding terminal sessions for graceDelay before
// destruction.
func NewManager(st store.Store, maxSessions int, graceDelay time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if graceDelay <= 0 {
		graceDelay = DefaultGraceDelay
	}
	m := &Manager{
		store:       st,
		maxSessions: maxSessions,
		graceDelay:  graceDelay,
		closed:      make(chan struct{}),
	}
	st.OnExpired(m.handleExpired)
	return m
}

// Subscribe registers a lifecycle event listener. Handlers are called
// synchronously, in registration order, with panics recovered so one
// subscriber cannot break delivery to the others.
func (m *Manager) Subscribe(fn func(LifecycleEvent)) func() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	idx := len(m.subs)
	m.subs = append(m.subs, fn)
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if idx < len(m.subs) {
			m.subs[idx] = nil
		}
	}
}

func (m *Manager) publish(ev LifecycleEvent) {
	m.subsMu.Lock()
	subs := make([]func(LifecycleEvent), len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, fn := range subs {
		if fn == nil {
			continue
		}
		func() {
			defer func() { recover() }()
			fn(ev)
		}()
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClampTimeout clamps a caller-requested timeout into [MinTimeout, MaxTimeout].
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// CreateParams are the sanitized inputs to Create.
type CreateParams struct {
	ToolName      string
	Timeout       time.Duration
	CallerContext json.RawMessage
	InitialParams json.RawMessage
}

// Create validates toolName, clamps the timeout, sanitizes callerContext,
// refuses creation past MaxSessions, and inserts a new Idle session with
// a CSPRNG-derived id (spec.md §4.5 "Create").
func (m *Manager) Create(ctx context.Context, p CreateParams) (*State, error) {
	if p.ToolName == "" {
		return nil, fmt.Errorf("session: toolName must not be empty")
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: count sessions: %w", err)
	}
	if count >= m.maxSessions {
		return nil, fmt.Errorf("session: max sessions (%d) reached", m.maxSessions)
	}

	callerContext, err := sanitizeJSON(p.CallerContext, maxCallerContextBytes)
	if err != nil {
		return nil, fmt.Errorf("session: callerContext: %w", err)
	}

	timeout := ClampTimeout(p.Timeout)
	id := uuid.NewString()
	now := nowMillis()

	s := &State{
		SessionID: id,
		Status:    StatusIdle,
		Metadata: Metadata{
			CreatedAt:      now,
			LastActivityAt: now,
			ToolName:       p.ToolName,
			CallerContext:  callerContext,
		},
		History:         []protocol.Turn{},
		AccumulatedData: map[string]json.RawMessage{},
	}

	if err := m.store.Set(ctx, id, s, timeout); err != nil {
		return nil, fmt.Errorf("session: store session: %w", err)
	}

	m.publish(LifecycleEvent{Type: EventCreated, SessionID: id, State: s})
	return s, nil
}

// validateID enforces the id-shape rule shared by every read (spec.md §4.5 "Read").
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session: id must not be empty")
	}
	if len(id) > maxSessionIDBytes {
		return fmt.Errorf("session: id exceeds %d bytes", maxSessionIDBytes)
	}
	return nil
}

// Get returns a deep copy of the named session, or (nil, false, nil) if
// it does not exist or has expired.
func (m *Manager) Get(ctx context.Context, id string) (*State, bool, error) {
	if err := validateID(id); err != nil {
		return nil, false, err
	}
	return m.store.Get(ctx, id)
}

// Count returns the number of active sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// withLock serializes the read-modify-write cycle for one session id, the
// "logical lock" spec.md §5 requires of every higher-level mutation.
func (m *Manager) withLock(id string, fn func() error) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// UpdateState fetches the current session, validates the requested
// transition, applies mutate to the cloned state, and writes it back
// (refreshing ttl). mutate must not change s.Status directly other than
// to the validated `to` value; UpdateState sets it.
func (m *Manager) UpdateState(ctx context.Context, id string, to Status, ttl time.Duration, mutate func(s *State)) (*State, error) {
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
		if _, perr := Transition(s.Status, to); perr != nil {
			return perr
		}
		s.Status = to
		// CurrentPrompt is only set while the session is WaitingUser.
		if to != StatusWaitingUser {
			s.CurrentPrompt = nil
		}
		if mutate != nil {
			mutate(s)
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
	if result.Status == StatusWaitingUser {
		m.publish(LifecycleEvent{Type: EventWaiting, SessionID: id, State: result})
	}
	return result, nil
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return fmt.Sprintf("session: %q not found", e.id) }

func sessionNotFound(id string) error { return &notFoundError{id: id} }

// IsNotFound reports whether err was produced by a lookup miss.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

// Complete, Cancel, and Error require a non-terminal source state; they
// write result/reason into AccumulatedData, publish the matching event,
// and schedule destruction after the manager's grace delay.
func (m *Manager) Complete(ctx context.Context, id string, result json.RawMessage) (*State, error) {
	s, err := m.transitionTerminal(ctx, id, StatusCompleted, func(st *State) {
		st.AccumulatedData["result"] = result
		st.CurrentPrompt = nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(LifecycleEvent{Type: EventCompleted, SessionID: id, State: s})
	m.scheduleDestroy(id)
	return s, nil
}

func (m *Manager) Cancel(ctx context.Context, id string, reason string) (*State, error) {
	s, err := m.transitionTerminal(ctx, id, StatusCancelled, func(st *State) {
		if reason != "" {
			st.AccumulatedData["cancelReason"], _ = json.Marshal(reason)
		}
		st.CurrentPrompt = nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(LifecycleEvent{Type: EventCancelled, SessionID: id, State: s})
	m.scheduleDestroy(id)
	return s, nil
}

func (m *Manager) Error(ctx context.Context, id string, cause string) (*State, error) {
	s, err := m.transitionTerminal(ctx, id, StatusError, func(st *State) {
		st.AccumulatedData["error"], _ = json.Marshal(cause)
		st.CurrentPrompt = nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(LifecycleEvent{Type: EventErrored, SessionID: id, State: s})
	m.scheduleDestroy(id)
	return s, nil
}

func (m *Manager) transitionTerminal(ctx context.Context, id string, to Status, mutate func(*State)) (*State, error) {
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
		if _, perr := Transition(s.Status, to); perr != nil {
			return perr
		}
		s.Status = to
		mutate(s)
		s.Metadata.LastActivityAt = nowMillis()
		// Terminal sessions keep a short grace TTL regardless of their
		// original timeout, so a caller can still poll final state once.
		// This must stay in lockstep with scheduleDestroy's m.graceDelay,
		// or the store expires the entry (firing a spurious EventExpired)
		// before the manager's own explicit delete fires.
		if err := m.store.Set(ctx, id, s, m.graceDelay*2); err != nil {
			return err
		}
		result = s
		return nil
	})
	return result, err
}

func (m *Manager) scheduleDestroy(id string) {
	timer := time.AfterFunc(m.graceDelay, func() {
		m.timers.Delete(id)
		_, _ = m.store.Delete(context.Background(), id)
	})
	if old, loaded := m.timers.LoadOrStore(id, timer); loaded {
		old.(*time.Timer).Stop()
		m.timers.Store(id, timer)
	}
}

func (m *Manager) handleExpired(id string) {
	if t, ok := m.timers.LoadAndDelete(id); ok {
		t.(*time.Timer).Stop()
	}
	m.publish(LifecycleEvent{Type: EventExpired, SessionID: id, State: nil})
}

// Close cancels all pending timers, closes the backing store, and drops
// all subscribers.
func (m *Manager) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	select {
	case <-m.closed:
		return nil
	default:
		close(m.closed)
	}

	m.timers.Range(func(_, v any) bool {
		v.(*time.Timer).Stop()
		return true
	})
	m.subsMu.Lock()
	m.subs = nil
	m.subsMu.Unlock()

	return m.store.Close()
}

func sanitizeJSON(raw json.RawMessage, maxBytes int) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("exceeds %d bytes", maxBytes)
	}
	return data, nil
}
