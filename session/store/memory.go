package store

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/opentool-run/interact/state"
)

type entry struct {
	id       string
	state    *state.State
	expireAt time.Time
	index    int // heap index, maintained by expireHeap
}

// expireHeap orders entries by expireAt, soonest first.
type expireHeap []*entry

func (h expireHeap) Len() int            { return len(h) }
func (h expireHeap) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h expireHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *expireHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *expireHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Memory is a single-process Store with a background sweep that evicts
// expired keys between calls. It suffices for single-process deployments
// per spec.md §4.4's rationale; MaxKeys bounds total admitted keys.
type Memory struct {
	mu       sync.Mutex
	byID     map[string]*entry
	expiry   expireHeap
	maxKeys  int
	onExpire func(id string)
	onDelete func(id string)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory constructs a Memory store that sweeps for expired keys every
// pruneInterval. maxKeys <= 0 means unbounded.
func NewMemory(pruneInterval time.Duration, maxKeys int) *Memory {
	m := &Memory{
		byID:    make(map[string]*entry),
		maxKeys: maxKeys,
		stop:    make(chan struct{}),
	}
	if pruneInterval <= 0 {
		pruneInterval = 60 * time.Second
	}
	go m.sweepLoop(pruneInterval)
	return m
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) sweep() {
	now := time.Now()
	var expired []string

	m.mu.Lock()
	for m.expiry.Len() > 0 {
		head := m.expiry[0]
		if head.expireAt.After(now) {
			break
		}
		heap.Pop(&m.expiry)
		delete(m.byID, head.id)
		expired = append(expired, head.id)
	}
	cb := m.onExpire
	m.mu.Unlock()

	if cb != nil {
		for _, id := range expired {
			cb(id)
		}
	}
}

func (m *Memory) Set(_ context.Context, id string, s *state.State, ttl time.Duration) error {
	clone, err := s.Clone()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[id]
	if !ok {
		if m.maxKeys > 0 && len(m.byID) >= m.maxKeys {
			return &maxKeysError{maxKeys: m.maxKeys}
		}
		e := &entry{id: id, state: clone, expireAt: time.Now().Add(ttl)}
		m.byID[id] = e
		heap.Push(&m.expiry, e)
		return nil
	}

	existing.state = clone
	existing.expireAt = time.Now().Add(ttl)
	heap.Fix(&m.expiry, existing.index)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*state.State, bool, error) {
	m.mu.Lock()
	e, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, false, nil
	}
	st := e.state
	m.mu.Unlock()

	clone, err := st.Clone()
	if err != nil {
		return nil, false, err
	}
	return clone, true, nil
}

func (m *Memory) Has(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	_, ok := m.byID[id]
	m.mu.Unlock()
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	e, ok := m.byID[id]
	if ok {
		heap.Remove(&m.expiry, e.index)
		delete(m.byID, id)
	}
	cb := m.onDelete
	m.mu.Unlock()

	if ok && cb != nil {
		cb(id)
	}
	return ok, nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.byID))
	for id := range m.byID {
		keys = append(keys, id)
	}
	return keys, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) OnExpired(cb func(id string)) {
	m.mu.Lock()
	m.onExpire = cb
	m.mu.Unlock()
}

func (m *Memory) OnDeleted(cb func(id string)) {
	m.mu.Lock()
	m.onDelete = cb
	m.mu.Unlock()
}

type maxKeysError struct{ maxKeys int }

func (e *maxKeysError) Error() string {
	return "store: max keys reached"
}
