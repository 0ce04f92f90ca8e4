package protocol

import "encoding/json"

// PromptType tags the kind of question a tool is asking its caller.
type PromptType string

const (
	PromptText    PromptType = "text"
	PromptNumber  PromptType = "number"
	PromptChoice  PromptType = "choice"
	PromptConfirm PromptType = "confirm"
	PromptDate    PromptType = "date"
	PromptFile    PromptType = "file"
	PromptCustom  PromptType = "custom"
)

// Choice is one selectable option of a Choice prompt.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ValidationRules constrains the caller's response to a Prompt.
type ValidationRules struct {
	Required *bool           `json:"required,omitempty"`
	Pattern  string          `json:"pattern,omitempty"`
	Min      *float64        `json:"min,omitempty"`
	Max      *float64        `json:"max,omitempty"`
	Custom   json.RawMessage `json:"custom,omitempty"`
}

// Prompt is a structured question sent from a tool to its caller.
type Prompt struct {
	Type         PromptType       `json:"type"`
	Message      string           `json:"message"`
	Placeholder  string           `json:"placeholder,omitempty"`
	DefaultValue json.RawMessage  `json:"defaultValue,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Choices      []Choice         `json:"choices,omitempty"`
	Validation   *ValidationRules `json:"validation,omitempty"`
}

// Response is the caller's typed answer to the most recent outstanding Prompt.
type Response struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Turn is a prompt/response pair recorded in session history. Either half
// may be absent at append time (a prompt is appended before its response
// arrives).
type Turn struct {
	TurnID    int       `json:"turnId"`
	Prompt    *Prompt   `json:"prompt,omitempty"`
	Response  *Response `json:"response,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// ValidationResult is returned by validate.Validate and surfaced to the
// caller verbatim in interaction.respond's response envelope.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Error      string   `json:"error,omitempty"`
	Suggestion []string `json:"suggestion,omitempty"`
}
