package state

import (
	"encoding/json"
	"testing"

	"github.com/opentool-run/interact/protocol"
)

func TestTransitionIdleToActive(t *testing.T) {
	event, err := Transition(StatusIdle, StatusActive)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if event != EventStart {
		t.Errorf("event = %v, want %v", event, EventStart)
	}
}

func TestTransitionRejectsUnknownSourceState(t *testing.T) {
	if _, err := Transition(Status("bogus"), StatusActive); err == nil {
		t.Fatalf("expected an unknown source state to be rejected")
	}
}

func TestIsTerminalOnlyForCompletedCancelledError(t *testing.T) {
	terminal := map[Status]bool{
		StatusIdle:        false,
		StatusActive:      false,
		StatusWaitingUser: false,
		StatusProcessing:  false,
		StatusCompleted:   true,
		StatusCancelled:   true,
		StatusError:       true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestCloneDeepCopiesAccumulatedDataAndHistory(t *testing.T) {
	s := &State{
		SessionID:       "abc",
		Status:          StatusActive,
		History:         []protocol.Turn{{TurnID: 1}},
		AccumulatedData: map[string]json.RawMessage{"k": json.RawMessage(`1`)},
	}
	clone, err := s.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	clone.History[0].TurnID = 99
	clone.AccumulatedData["k"] = json.RawMessage(`2`)

	if s.History[0].TurnID != 1 {
		t.Errorf("mutating clone.History leaked into the original")
	}
	if string(s.AccumulatedData["k"]) != "1" {
		t.Errorf("mutating clone.AccumulatedData leaked into the original")
	}
}

func TestCloneDefaultsNilAccumulatedDataToEmptyMap(t *testing.T) {
	s := &State{SessionID: "abc", Status: StatusIdle}
	clone, err := s.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if clone.AccumulatedData == nil {
		t.Fatalf("expected Clone to default a nil AccumulatedData to an empty map")
	}
}
