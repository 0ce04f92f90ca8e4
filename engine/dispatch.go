package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/session"
	"github.com/opentool-run/interact/validate"
)

const protocolVersion = "2024-11-05"

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct {
	Interactive         bool `json:"interactive"`
	StatefulSessions    bool `json:"statefulSessions"`
	ProgressTracking    bool `json:"progressTracking"`
	Validation          bool `json:"validation"`
	MultiplePromptTypes bool `json:"multiplePromptTypes"`
	SessionPersistence  bool `json:"sessionPersistence"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      serverInfo `json:"serverInfo"`
	Capabilities    struct {
		Experimental struct {
			Interactive capabilities `json:"interactive"`
		} `json:"experimental"`
	} `json:"capabilities"`
}

func (e *Engine) handleInitialize(req *protocol.Request) *protocol.Response {
	result := initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      serverInfo{Name: "interactd", Version: "0.1.0"},
	}
	result.Capabilities.Experimental.Interactive = capabilities{
		Interactive:         true,
		StatefulSessions:    true,
		ProgressTracking:    true,
		Validation:          true,
		MultiplePromptTypes: true,
		SessionPersistence:  false,
	}
	return protocol.NewResponse(req.ID, result)
}

type startParams struct {
	ToolName      string          `json:"toolName"`
	InitialParams json.RawMessage `json:"initialParams,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
	Timeout       int64           `json:"timeout,omitempty"`
}

type startResult struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

func (e *Engine) handleStart(ctx context.Context, req *protocol.Request) *protocol.Response {
	var p startParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req.ID, err)
	}
	t, ok := e.registry.Lookup(p.ToolName)
	if !ok {
		return badParams(req.ID, fmt.Errorf("unknown tool %q", p.ToolName))
	}

	timeout := e.config.DefaultTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Millisecond
	}
	timeout = session.ClampTimeout(timeout)

	st, err := e.manager.Create(ctx, session.CreateParams{
		ToolName:      p.ToolName,
		Timeout:       timeout,
		CallerContext: p.Context,
		InitialParams: p.InitialParams,
	})
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, err.Error()))
	}
	e.timeout.Store(st.SessionID, timeout)
	e.spawn(t.Name, st.SessionID, p.InitialParams, p.Context, timeout)

	return protocol.NewResponse(req.ID, startResult{SessionID: st.SessionID, State: string(st.Status)})
}

type respondParams struct {
	SessionID string            `json:"sessionId"`
	Response  protocol.Response `json:"response"`
}

type respondResult struct {
	Accepted   bool                       `json:"accepted"`
	Validation *protocol.ValidationResult `json:"validation,omitempty"`
}

func (e *Engine) handleRespond(ctx context.Context, req *protocol.Request) *protocol.Response {
	var p respondParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req.ID, err)
	}

	st, ok, err := e.manager.Get(ctx, p.SessionID)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, err.Error()))
	}
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.ErrSessionNotFound(p.SessionID))
	}
	if st.Status.IsTerminal() {
		return protocol.NewErrorResponse(req.ID, protocol.ErrAlreadyCancelled(p.SessionID))
	}
	if st.Status != session.StatusWaitingUser || st.CurrentPrompt == nil {
		return protocol.NewErrorResponse(req.ID, errNoActivePrompt)
	}

	result := validate.Validate(p.Response, *st.CurrentPrompt)
	if !result.Valid {
		return protocol.NewResponse(req.ID, respondResult{Accepted: false, Validation: &result})
	}

	normalized, err := validate.Normalize(p.Response.Value, st.CurrentPrompt.Type)
	if err != nil {
		invalid := protocol.ValidationResult{Valid: false, Error: err.Error()}
		return protocol.NewResponse(req.ID, respondResult{Accepted: false, Validation: &invalid})
	}
	p.Response.Value = normalized

	timeout := e.timeoutFor(p.SessionID)
	if _, err := e.manager.AddTurn(ctx, p.SessionID, nil, &p.Response, timeout); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, err.Error()))
	}
	if _, err := e.manager.UpdateState(ctx, p.SessionID, session.StatusProcessing, timeout, nil); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, err.Error()))
	}

	if !e.wake(p.SessionID, rendezvousResult{response: p.Response}) {
		return protocol.NewErrorResponse(req.ID, errNoActivePrompt)
	}

	return protocol.NewResponse(req.ID, respondResult{Accepted: true, Validation: &result})
}

type cancelParams struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type cancelResult struct {
	Cancelled bool `json:"cancelled"`
}

func (e *Engine) handleCancel(ctx context.Context, req *protocol.Request) *protocol.Response {
	var p cancelParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req.ID, err)
	}
	if _, err := e.manager.Cancel(ctx, p.SessionID, p.Reason); err != nil {
		return protocol.NewErrorResponse(req.ID, toRPCError(err, p.SessionID))
	}
	return protocol.NewResponse(req.ID, cancelResult{Cancelled: true})
}

type getStateParams struct {
	SessionID string `json:"sessionId"`
}

func (e *Engine) handleGetState(ctx context.Context, req *protocol.Request) *protocol.Response {
	var p getStateParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req.ID, err)
	}
	st, ok, err := e.manager.Get(ctx, p.SessionID)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, err.Error()))
	}
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.ErrSessionNotFound(p.SessionID))
	}
	return protocol.NewResponse(req.ID, st)
}

func (e *Engine) timeoutFor(id string) time.Duration {
	if v, ok := e.timeout.Load(id); ok {
		return v.(time.Duration)
	}
	return e.config.DefaultTimeout
}

// toRPCError maps a session-package error to a *protocol.Error, so
// dispatch handlers never leak internal error types to a caller.
func toRPCError(err error, id string) *protocol.Error {
	if perr, ok := err.(*protocol.Error); ok {
		return perr
	}
	if session.IsNotFound(err) {
		return protocol.ErrSessionNotFound(id)
	}
	return protocol.NewError(protocol.CodeInternalError, err.Error())
}
