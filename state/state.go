// Package state defines the session state machine's data types: Status,
// the legal transition table, and the State record itself. It is a leaf
// package with no dependency on session or session/store, so that
// session/store can hold *State without importing the higher-level
// session package that in turn depends on session/store for its Store
// interface.
package state

import (
	"encoding/json"

	"github.com/opentool-run/interact/protocol"
)

// Status is one of the seven states a Session may be in.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusActive      Status = "active"
	StatusWaitingUser Status = "waiting_user"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
)

// Event names the edge taken between two states.
type Event string

const (
	EventStart    Event = "start"
	EventWaitUser Event = "wait_user"
	EventProcess  Event = "process"
	EventResume   Event = "resume"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	EventError    Event = "error"
)

// IsTerminal reports whether no outgoing transition exists from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// transitions enumerates every legal (from, to) edge and the event that
// produced it, exactly as spec.md's state-machine table.
var transitions = map[Status]map[Status]Event{
	StatusIdle: {
		StatusActive: EventStart,
	},
	StatusActive: {
		StatusWaitingUser: EventWaitUser,
		StatusProcessing:  EventProcess,
		StatusCompleted:   EventComplete,
		StatusCancelled:   EventCancel,
		StatusError:       EventError,
	},
	StatusWaitingUser: {
		StatusProcessing: EventProcess,
		StatusCancelled:  EventCancel,
		StatusError:      EventError,
	},
	StatusProcessing: {
		StatusActive:    EventResume,
		StatusCompleted: EventComplete,
		StatusCancelled: EventCancel,
		StatusError:     EventError,
	},
}

// Transition returns the event for the (from, to) edge, or a
// protocol.Error with code InvalidStateTransition if no such edge exists.
func Transition(from, to Status) (Event, *protocol.Error) {
	edges, ok := transitions[from]
	if !ok {
		return "", protocol.ErrInvalidStateTransition(string(from), string(to))
	}
	event, ok := edges[to]
	if !ok {
		return "", protocol.ErrInvalidStateTransition(string(from), string(to))
	}
	return event, nil
}

// Metadata carries session bookkeeping. Timestamps are monotonic
// milliseconds since Unix epoch.
type Metadata struct {
	CreatedAt      int64           `json:"createdAt"`
	LastActivityAt int64           `json:"lastActivityAt"`
	ToolName       string          `json:"toolName"`
	CallerContext  json.RawMessage `json:"callerContext,omitempty"`
}

// State is the full state of one interactive tool invocation. It is the
// unit stored by session/store and returned (as a deep copy) by every
// session.Manager read.
type State struct {
	SessionID       string                     `json:"sessionId"`
	Status          Status                     `json:"state"`
	Metadata        Metadata                   `json:"metadata"`
	History         []protocol.Turn            `json:"history"`
	CurrentPrompt   *protocol.Prompt           `json:"currentPrompt,omitempty"`
	AccumulatedData map[string]json.RawMessage `json:"accumulatedData"`
}

// MaxHistory is the cap on State.History (spec.md invariant 3).
const MaxHistory = 100

// Clone returns a deep copy of s via a JSON round-trip, the same
// technique the spec's "clone on read" invariant requires of any storage
// backend (§4.4/§4.5 invariant 6).
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	clone := &State{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, err
	}
	if clone.AccumulatedData == nil {
		clone.AccumulatedData = map[string]json.RawMessage{}
	}
	return clone, nil
}
