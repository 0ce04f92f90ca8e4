// Package session implements the interaction session: its lifecycle
// manager and the bounded history/data it carries, on top of the state
// machine data types in package state.
package session

import (
	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/state"
)

// Status, Event, Metadata, and State are aliases of their package state
// counterparts, kept here so callers already importing package session
// do not need to know the state machine's data types live one level
// lower (they were extracted into package state only so that
// session/store could hold *State without importing package session,
// which in turn depends on session/store for its Store interface).
type (
	Status   = state.Status
	Event    = state.Event
	Metadata = state.Metadata
	State    = state.State
)

const (
	StatusIdle        = state.StatusIdle
	StatusActive      = state.StatusActive
	StatusWaitingUser = state.StatusWaitingUser
	StatusProcessing  = state.StatusProcessing
	StatusCompleted   = state.StatusCompleted
	StatusCancelled   = state.StatusCancelled
	StatusError       = state.StatusError
)

const (
	EventStart    = state.EventStart
	EventWaitUser = state.EventWaitUser
	EventProcess  = state.EventProcess
	EventResume   = state.EventResume
	EventComplete = state.EventComplete
	EventCancel   = state.EventCancel
	EventError    = state.EventError
)

// MaxHistory is the cap on State.History (spec.md invariant 3).
const MaxHistory = state.MaxHistory

// Transition re-exports state.Transition for the package's own callers.
func Transition(from, to Status) (Event, *protocol.Error) {
	return state.Transition(from, to)
}
