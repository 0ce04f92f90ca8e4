// Package validate implements the response validator and normalizer of
// spec.md §4.2: a bounded-size guard, per-prompt-type rules, and
// optional JSON-Schema enforcement for Custom prompts.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/opentool-run/interact/protocol"
)

// MaxResponseBytes is the serialized-size cap on a Response.Value,
// checked before any other rule runs (spec.md "Size guard").
const MaxResponseBytes = 100 * 1024

// Validate checks resp against prompt's type and validation rules,
// returning a protocol.ValidationResult. It never returns an error for a
// caller mistake — those are reported through the result's Valid/Error
// fields, per spec.md §7's "validation failures are not RPC errors".
func Validate(resp protocol.Response, prompt protocol.Prompt) protocol.ValidationResult {
	if len(resp.Value) > MaxResponseBytes {
		return invalid(fmt.Sprintf("response exceeds %d bytes", MaxResponseBytes))
	}

	if isRequired(prompt.Validation) && isEmpty(resp.Value) {
		return invalid("this field is required")
	}
	// An empty, non-required value short-circuits type-specific checks —
	// there is nothing left to validate.
	if isEmpty(resp.Value) {
		return protocol.ValidationResult{Valid: true}
	}

	switch prompt.Type {
	case protocol.PromptText:
		return validateText(resp.Value, prompt.Validation)
	case protocol.PromptNumber:
		return validateNumber(resp.Value, prompt.Validation)
	case protocol.PromptChoice:
		return validateChoice(resp.Value, prompt.Choices)
	case protocol.PromptConfirm:
		return validateConfirm(resp.Value)
	case protocol.PromptDate:
		return validateDate(resp.Value)
	case protocol.PromptCustom:
		return validateCustom(resp.Value, prompt.Validation)
	case protocol.PromptFile:
		return protocol.ValidationResult{Valid: true}
	default:
		return invalid(fmt.Sprintf("unknown prompt type %q", prompt.Type))
	}
}

func invalid(msg string, suggestion ...string) protocol.ValidationResult {
	return protocol.ValidationResult{Valid: false, Error: msg, Suggestion: suggestion}
}

func isRequired(v *protocol.ValidationRules) bool {
	return v != nil && v.Required != nil && *v.Required
}

func isEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func validateText(raw json.RawMessage, rules *protocol.ValidationRules) protocol.ValidationResult {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return invalid("expected a string")
	}
	if rules == nil {
		return protocol.ValidationResult{Valid: true}
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			return invalid("bad pattern configuration")
		}
		loc := re.FindStringIndex(s)
		if loc == nil || loc[0] != 0 || loc[1] != len(s) {
			return invalid(fmt.Sprintf("does not match pattern %q", rules.Pattern))
		}
	}
	if rules.Min != nil && float64(len(s)) < *rules.Min {
		return invalid(fmt.Sprintf("minimum length is %v", *rules.Min))
	}
	if rules.Max != nil && float64(len(s)) > *rules.Max {
		return invalid(fmt.Sprintf("maximum length is %v", *rules.Max))
	}
	return protocol.ValidationResult{Valid: true}
}

func validateNumber(raw json.RawMessage, rules *protocol.ValidationRules) protocol.ValidationResult {
	n, ok := asNumber(raw)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return invalid("expected a finite number")
	}
	if rules == nil {
		return protocol.ValidationResult{Valid: true}
	}
	if rules.Min != nil && n < *rules.Min {
		return invalid(fmt.Sprintf("minimum value is %v", *rules.Min))
	}
	if rules.Max != nil && n > *rules.Max {
		return invalid(fmt.Sprintf("maximum value is %v", *rules.Max))
	}
	return protocol.ValidationResult{Valid: true}
}

func asNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func validateChoice(raw json.RawMessage, choices []protocol.Choice) protocol.ValidationResult {
	value := stringify(raw)
	for _, c := range choices {
		if c.Value == value {
			return protocol.ValidationResult{Valid: true}
		}
	}
	options := make([]string, len(choices))
	for i, c := range choices {
		options[i] = c.Value
	}
	return invalid(fmt.Sprintf("%q is not one of the available choices", value), options...)
}

func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

var confirmTokens = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "y": true, "n": true,
}

func validateConfirm(raw json.RawMessage) protocol.ValidationResult {
	if _, ok := asConfirm(raw); !ok {
		return invalid("expected a boolean or one of true/false/yes/no/y/n")
	}
	return protocol.ValidationResult{Valid: true}
}

func asConfirm(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && confirmTokens[strings.ToLower(s)] {
		switch strings.ToLower(s) {
		case "true", "yes", "y":
			return true, true
		default:
			return false, true
		}
	}
	return false, false
}

func validateDate(raw json.RawMessage) protocol.ValidationResult {
	if _, ok := asDate(raw); !ok {
		return invalid("expected an ISO-8601 date or epoch-millis number")
	}
	return protocol.ValidationResult{Valid: true}
}

func asDate(raw json.RawMessage) (time.Time, bool) {
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Normalize canonicalizes raw per t and re-encodes the canonical value
// as JSON, so a caller can store it straight back into a Response.Value.
// Text/Choice/File/Custom pass through unchanged; it is idempotent for
// every type (spec.md §8 "normalize(normalize(v,T),T) == normalize(v,T)").
func Normalize(raw json.RawMessage, t protocol.PromptType) (json.RawMessage, error) {
	switch t {
	case protocol.PromptNumber:
		n, ok := asNumber(raw)
		if !ok {
			return nil, fmt.Errorf("validate: not a number")
		}
		return json.Marshal(n)
	case protocol.PromptConfirm:
		b, ok := asConfirm(raw)
		if !ok {
			return nil, fmt.Errorf("validate: not a confirm value")
		}
		return json.Marshal(b)
	case protocol.PromptDate:
		d, ok := asDate(raw)
		if !ok {
			return nil, fmt.Errorf("validate: not a date value")
		}
		return json.Marshal(d.Format(time.RFC3339))
	default:
		return raw, nil
	}
}

// schemaCache memoizes compiled JSON schemas by their raw document so a
// prompt reused across many turns doesn't recompile its schema each time.
// The dispatcher is re-entrant (every inbound interaction.respond runs on
// its own goroutine), so reads and writes go through schemaCacheMu.
var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]*jsonschema.Resolved{}
)

// validateCustom is a pass-through unless rules.Custom carries a JSON
// Schema document, in which case the response is validated against it
// (SPEC_FULL.md §9's enrichment of the teacher's otherwise-unused
// google/jsonschema-go dependency).
func validateCustom(raw json.RawMessage, rules *protocol.ValidationRules) protocol.ValidationResult {
	if rules == nil || len(rules.Custom) == 0 {
		return protocol.ValidationResult{Valid: true}
	}
	resolved, err := compileSchema(rules.Custom)
	if err != nil {
		return invalid("bad custom schema configuration")
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return invalid("value is not valid JSON")
	}
	if err := resolved.Validate(instance); err != nil {
		return invalid(err.Error())
	}
	return protocol.ValidationResult{Valid: true}
}

func compileSchema(doc json.RawMessage) (*jsonschema.Resolved, error) {
	key := string(doc)

	schemaCacheMu.Lock()
	cached, ok := schemaCache[key]
	schemaCacheMu.Unlock()
	if ok {
		return cached, nil
	}

	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(doc, schema); err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, err
	}

	schemaCacheMu.Lock()
	schemaCache[key] = resolved
	schemaCacheMu.Unlock()
	return resolved, nil
}
