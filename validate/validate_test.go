package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/opentool-run/interact/protocol"
)

func required() *protocol.ValidationRules {
	t := true
	return &protocol.ValidationRules{Required: &t}
}

func TestValidateSizeGuardRunsBeforeAnyOtherRule(t *testing.T) {
	big, _ := json.Marshal(strings.Repeat("a", MaxResponseBytes+1))
	resp := protocol.Response{Value: big}
	prompt := protocol.Prompt{Type: protocol.PromptText}
	result := Validate(resp, prompt)
	if result.Valid {
		t.Fatalf("expected oversized response to be rejected")
	}
}

func TestValidateRequired(t *testing.T) {
	empty, _ := json.Marshal("")
	result := Validate(protocol.Response{Value: empty}, protocol.Prompt{
		Type:       protocol.PromptText,
		Validation: required(),
	})
	if result.Valid {
		t.Fatalf("expected empty required value to fail")
	}
}

func TestValidateNumberBounds(t *testing.T) {
	cases := []struct {
		name  string
		value any
		min   float64
		max   float64
		valid bool
	}{
		{"below min", 10, 18, 120, false},
		{"at min", 18, 18, 120, true},
		{"in range", 25, 18, 120, true},
		{"above max", 200, 18, 120, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, _ := json.Marshal(tc.value)
			result := Validate(protocol.Response{Value: raw}, protocol.Prompt{
				Type: protocol.PromptNumber,
				Validation: &protocol.ValidationRules{
					Min: &tc.min,
					Max: &tc.max,
				},
			})
			if result.Valid != tc.valid {
				t.Errorf("Valid = %v, want %v (error: %q)", result.Valid, tc.valid, result.Error)
			}
		})
	}
}

func TestValidateNumberRejectsNonNumeric(t *testing.T) {
	raw, _ := json.Marshal("abc")
	result := Validate(protocol.Response{Value: raw}, protocol.Prompt{Type: protocol.PromptNumber})
	if result.Valid {
		t.Fatalf("expected non-numeric string to fail Number validation")
	}
}

func TestValidateChoiceRejectionCarriesSuggestions(t *testing.T) {
	raw, _ := json.Marshal("yellow")
	prompt := protocol.Prompt{
		Type: protocol.PromptChoice,
		Choices: []protocol.Choice{
			{Value: "red", Label: "Red"},
			{Value: "blue", Label: "Blue"},
			{Value: "green", Label: "Green"},
		},
	}
	result := Validate(protocol.Response{Value: raw}, prompt)
	if result.Valid {
		t.Fatalf("expected yellow to be rejected")
	}
	want := map[string]bool{"red": true, "blue": true, "green": true}
	if len(result.Suggestion) != len(want) {
		t.Fatalf("suggestion = %v, want all of %v", result.Suggestion, want)
	}
	for _, s := range result.Suggestion {
		if !want[s] {
			t.Errorf("unexpected suggestion %q", s)
		}
	}
}

func TestValidateChoiceAccepted(t *testing.T) {
	raw, _ := json.Marshal("blue")
	prompt := protocol.Prompt{
		Type:    protocol.PromptChoice,
		Choices: []protocol.Choice{{Value: "red"}, {Value: "blue"}, {Value: "green"}},
	}
	if result := Validate(protocol.Response{Value: raw}, prompt); !result.Valid {
		t.Fatalf("expected blue to be accepted, got error %q", result.Error)
	}
}

func TestConfirmNormalizationLaws(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`"yes"`, true},
		{`"YES"`, true},
		{`true`, true},
		{`"no"`, false},
		{`false`, false},
		{`"y"`, true},
		{`"N"`, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			out, err := Normalize(json.RawMessage(tc.in), protocol.PromptConfirm)
			if err != nil {
				t.Fatalf("Normalize(%s) error: %v", tc.in, err)
			}
			var b bool
			if err := json.Unmarshal(out, &b); err != nil {
				t.Fatalf("unmarshal normalized value: %v", err)
			}
			if b != tc.want {
				t.Errorf("Normalize(%s) = %v, want %v", tc.in, b, tc.want)
			}
		})
	}
}

func TestNumberNormalization(t *testing.T) {
	out, err := Normalize(json.RawMessage(`"42"`), protocol.PromptNumber)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	var n float64
	_ = json.Unmarshal(out, &n)
	if n != 42 {
		t.Errorf("normalize(\"42\") = %v, want 42", n)
	}

	if _, err := Normalize(json.RawMessage(`"abc"`), protocol.PromptNumber); err == nil {
		t.Errorf("expected normalize(\"abc\") to fail")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	types := []struct {
		promptType protocol.PromptType
		raw        json.RawMessage
	}{
		{protocol.PromptNumber, json.RawMessage(`"3.5"`)},
		{protocol.PromptConfirm, json.RawMessage(`"YES"`)},
		{protocol.PromptDate, json.RawMessage(`"2024-01-01"`)},
		{protocol.PromptText, json.RawMessage(`"hello"`)},
	}
	for _, tc := range types {
		t.Run(string(tc.promptType), func(t *testing.T) {
			once, err := Normalize(tc.raw, tc.promptType)
			if err != nil {
				t.Fatalf("first Normalize: %v", err)
			}
			twice, err := Normalize(once, tc.promptType)
			if err != nil {
				t.Fatalf("second Normalize: %v", err)
			}
			if string(once) != string(twice) {
				t.Errorf("not idempotent: %s != %s", once, twice)
			}
		})
	}
}

func TestValidateCustomPassThroughWithoutSchema(t *testing.T) {
	raw := json.RawMessage(`{"anything":"goes"}`)
	result := Validate(protocol.Response{Value: raw}, protocol.Prompt{Type: protocol.PromptCustom})
	if !result.Valid {
		t.Fatalf("expected Custom without a schema to pass through, got error %q", result.Error)
	}
}

func TestValidateCustomAgainstSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["age"],"properties":{"age":{"type":"integer"}}}`)
	prompt := protocol.Prompt{
		Type:       protocol.PromptCustom,
		Validation: &protocol.ValidationRules{Custom: schema},
	}

	ok := Validate(protocol.Response{Value: json.RawMessage(`{"age":30}`)}, prompt)
	if !ok.Valid {
		t.Errorf("expected schema-conformant value to pass, got error %q", ok.Error)
	}

	bad := Validate(protocol.Response{Value: json.RawMessage(`{"age":"not a number"}`)}, prompt)
	if bad.Valid {
		t.Errorf("expected schema-violating value to fail")
	}
}

// TestValidateCustomConcurrentSchemasDoNotRace exercises the dispatcher's
// re-entrancy guarantee: many goroutines validating distinct Custom
// schemas concurrently must not race on schemaCache (the race detector
// catches an unguarded map read/write here even though the test itself
// never asserts on timing).
func TestValidateCustomConcurrentSchemasDoNotRace(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			schema := json.RawMessage(fmt.Sprintf(`{"type":"object","required":["v"],"properties":{"v":{"const":%d}}}`, i))
			prompt := protocol.Prompt{
				Type:       protocol.PromptCustom,
				Validation: &protocol.ValidationRules{Custom: schema},
			}
			result := Validate(protocol.Response{Value: json.RawMessage(fmt.Sprintf(`{"v":%d}`, i))}, prompt)
			if !result.Valid {
				t.Errorf("goroutine %d: expected a conformant value to pass, got error %q", i, result.Error)
			}
		}()
	}
	wg.Wait()
}
