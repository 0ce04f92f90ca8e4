package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/session"
	"github.com/opentool-run/interact/tool"
)

// execContext is the concrete tool.ExecutionContext handed to a running
// handler. It owns nothing storage-related directly; every method
// forwards to the engine's session.Manager, and Prompt is the one
// method that suspends the calling goroutine on the engine's waiter
// table (spec.md §4.6).
type execContext struct {
	engine        *Engine
	sessionID     string
	initialParams json.RawMessage
	callerContext json.RawMessage
	timeout       time.Duration
}

func (c *execContext) SessionID() string             { return c.sessionID }
func (c *execContext) InitialParams() json.RawMessage { return c.initialParams }
func (c *execContext) CallerContext() json.RawMessage { return c.callerContext }
func (c *execContext) Done() <-chan struct{}          { return c.engine.doneChan(c.sessionID) }

// Prompt implements the rendezvous: append the prompt to history, move
// the session to WaitingUser, then block until interaction.respond
// delivers an answer, the session is cancelled/errored/expired, or ctx
// is cancelled. On a successful delivery the session is moved back to
// Active before Prompt returns, mirroring a coroutine resuming.
func (c *execContext) Prompt(ctx context.Context, p protocol.Prompt) (protocol.Response, error) {
	if _, err := c.engine.manager.AddTurn(ctx, c.sessionID, &p, nil, c.timeout); err != nil {
		return protocol.Response{}, err
	}
	if _, err := c.engine.manager.UpdateState(ctx, c.sessionID, session.StatusWaitingUser, c.timeout, nil); err != nil {
		return protocol.Response{}, err
	}

	wait := c.engine.registerWaiter(c.sessionID)
	select {
	case res := <-wait:
		if res.err != nil {
			return protocol.Response{}, res.err
		}
		if _, err := c.engine.manager.UpdateState(ctx, c.sessionID, session.StatusActive, c.timeout, nil); err != nil {
			return protocol.Response{}, err
		}
		return res.response, nil
	case <-ctx.Done():
		c.engine.waiters.Delete(c.sessionID)
		return protocol.Response{}, ctx.Err()
	case <-c.Done():
		return protocol.Response{}, fmt.Errorf("session %q is terminal", c.sessionID)
	}
}

func (c *execContext) SetData(key string, value any) error {
	_, err := c.engine.manager.SetData(context.Background(), c.sessionID, key, value, c.timeout)
	return err
}

func (c *execContext) GetData(key string) (json.RawMessage, bool) {
	v, _, ok, err := c.engine.manager.GetData(context.Background(), c.sessionID, key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func (c *execContext) GetAllData() map[string]json.RawMessage {
	_, all, ok, err := c.engine.manager.GetData(context.Background(), c.sessionID, "")
	if err != nil || !ok {
		return map[string]json.RawMessage{}
	}
	return all
}

// UpdateProgress is advisory: it records current/total/message under
// AccumulatedData["progress"] for getState polling clients. SetData
// publishes no lifecycle event, so a progress update pushes no
// interaction.continue notification.
func (c *execContext) UpdateProgress(current, total int, message string) {
	progress := map[string]any{"current": current, "total": total, "message": message}
	_, _ = c.engine.manager.SetData(context.Background(), c.sessionID, "progress", progress, c.timeout)
}

// spawn runs toolName's handler on its own goroutine: transitions the
// freshly created Idle session to Active, then awaits the handler,
// routing its outcome to Complete or Error. A handler panic is treated
// as a handler error (spec.md §7 "a tool handler throws or panics").
func (e *Engine) spawn(toolName, sessionID string, initialParams, callerContext json.RawMessage, timeout time.Duration) {
	t, ok := e.registry.Lookup(toolName)
	if !ok {
		return
	}
	ec := &execContext{
		engine:        e,
		sessionID:     sessionID,
		initialParams: initialParams,
		callerContext: callerContext,
		timeout:       timeout,
	}

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-ec.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		if _, err := e.manager.UpdateState(ctx, sessionID, session.StatusActive, timeout, nil); err != nil {
			e.config.Logger.Printf("engine: %s: activate session: %v", sessionID, err)
			return
		}

		result, err := runHandler(ctx, t.Handler, ec)
		if err != nil {
			if _, cerr := e.manager.Error(context.Background(), sessionID, err.Error()); cerr != nil {
				e.config.Logger.Printf("engine: %s: mark errored: %v", sessionID, cerr)
			}
			return
		}
		if _, cerr := e.manager.Complete(context.Background(), sessionID, result); cerr != nil {
			e.config.Logger.Printf("engine: %s: mark completed: %v", sessionID, cerr)
		}
	}()
}

// runHandler recovers a handler panic into an error, mirroring the
// teacher's goroutine-boundary recover()s in readLoop/dispatch.
func runHandler(ctx context.Context, handler tool.HandlerFunc, ec *execContext) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, ec)
}
