// Package tool defines the registry of interactive tools and the
// execution-context contract a tool handler runs against (spec.md §4.6).
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opentool-run/interact/protocol"
)

// HandlerFunc is a tool's body. It runs on its own goroutine for the
// lifetime of one session and returns the final result to store in
// AccumulatedData["result"], or an error to move the session to Error.
type HandlerFunc func(ctx context.Context, ec ExecutionContext) (json.RawMessage, error)

// Tool is one named, invocable unit of interactive work.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     HandlerFunc
}

// ExecutionContext is what a handler sees of its own session. Every
// implementation must serialize Prompt calls (at most one outstanding
// per session, enforced upstream by the state machine) and must make
// SetData/GetData/UpdateProgress return without waiting on a caller
// round-trip (spec.md §5 "suspension points").
type ExecutionContext interface {
	SessionID() string
	InitialParams() json.RawMessage
	CallerContext() json.RawMessage

	// Prompt suspends the calling goroutine until a matching
	// interaction.respond arrives, the session is cancelled, or the
	// session expires. The latter two return an error.
	Prompt(ctx context.Context, p protocol.Prompt) (protocol.Response, error)

	SetData(key string, value any) error
	GetData(key string) (json.RawMessage, bool)
	GetAllData() map[string]json.RawMessage
	UpdateProgress(current, total int, message string)

	// Done is closed when the session is cancelled, expires, or errors,
	// letting a handler that isn't blocked in Prompt still notice
	// (Open Question decision 1: cancellable handlers).
	Done() <-chan struct{}
}

// Registry is a concurrency-safe name→Tool lookup table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds t, failing if its name is empty, it has no handler, or
// a tool with the same name is already registered.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool: name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool: %q has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool: %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
