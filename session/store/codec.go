package store

import (
	"encoding/json"

	"github.com/opentool-run/interact/state"
)

func marshalState(s *state.State) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalState(data []byte) (*state.State, error) {
	s := &state.State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.AccumulatedData == nil {
		s.AccumulatedData = map[string]json.RawMessage{}
	}
	return s, nil
}
