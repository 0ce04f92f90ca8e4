// Package engine implements the JSON-RPC dispatcher that ties the tool
// registry to the session manager: interaction.start spawns a handler,
// interaction.respond rendezvous-delivers its answer, interaction.cancel
// and interaction.getState expose lifecycle control (spec.md §4.6/§4.7).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/session"
	"github.com/opentool-run/interact/tool"
)

// rendezvousResult is what a waiter channel carries: either a caller's
// answer or the cancellation sentinel recorded in err.
type rendezvousResult struct {
	response protocol.Response
	err      error
}

var errNoActivePrompt = protocol.ErrNotInteractive("no active prompt")

// Engine is the single entry point for JSON-RPC requests. It owns no
// session state itself — that lives in the session.Manager — only the
// waiter table bridging suspended handlers to interaction.respond and
// the per-session cancellation signal.
type Engine struct {
	manager  *session.Manager
	registry *tool.Registry
	config   *Config
	events   *Events

	waiters sync.Map // sessionId -> chan rendezvousResult
	dones   sync.Map // sessionId -> chan struct{}, closed on cancel/error/expire
	timeout sync.Map // sessionId -> time.Duration, the clamped TTL to refresh writes with
}

// NewEngine wires mgr and reg behind a dispatcher configured by cfg (or
// engine defaults when cfg is nil).
func NewEngine(mgr *session.Manager, reg *tool.Registry, cfg *Config) *Engine {
	if cfg == nil {
		cfg = NewConfig()
	}
	e := &Engine{
		manager:  mgr,
		registry: reg,
		config:   cfg,
	}
	e.events = newEvents(mgr)
	mgr.Subscribe(e.onLifecycleEvent)
	return e
}

// Events exposes the engine's lifecycle stream as optional push
// notifications a transport may forward.
func (e *Engine) Events() *Events { return e.events }

func (e *Engine) onLifecycleEvent(ev session.LifecycleEvent) {
	switch ev.Type {
	case session.EventCancelled, session.EventErrored, session.EventExpired:
		e.wake(ev.SessionID, rendezvousResult{err: fmt.Errorf("session %q is terminal", ev.SessionID)})
		e.closeDone(ev.SessionID)
	}
}

func (e *Engine) registerWaiter(id string) chan rendezvousResult {
	ch := make(chan rendezvousResult, 1)
	e.waiters.Store(id, ch)
	return ch
}

func (e *Engine) wake(id string, res rendezvousResult) bool {
	v, ok := e.waiters.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(chan rendezvousResult) <- res
	return true
}

func (e *Engine) doneChan(id string) chan struct{} {
	v, _ := e.dones.LoadOrStore(id, make(chan struct{}))
	return v.(chan struct{})
}

func (e *Engine) closeDone(id string) {
	v, loaded := e.dones.LoadAndDelete(id)
	if loaded {
		close(v.(chan struct{}))
	}
}

// Handle is the dispatcher's single entry point: it routes req.Method to
// the matching handler and always returns a non-nil Response, even for
// notifications (callers of a transport that frames notifications
// differently simply discard the id-less response).
func (e *Engine) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Method {
	case "initialize", "capabilities":
		return e.handleInitialize(req)
	case "interaction.start":
		return e.handleStart(ctx, req)
	case "interaction.respond":
		return e.handleRespond(ctx, req)
	case "interaction.cancel":
		return e.handleCancel(ctx, req)
	case "interaction.getState":
		return e.handleGetState(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func badParams(id json.RawMessage, err error) *protocol.Response {
	return protocol.NewErrorResponse(id, protocol.NewError(protocol.CodeInvalidParams, err.Error()))
}
