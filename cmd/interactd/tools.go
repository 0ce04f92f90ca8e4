package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentool-run/interact/protocol"
	"github.com/opentool-run/interact/tool"
)

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func demoTools() []tool.Tool {
	return []tool.Tool{greetTool(), ageGateTool(), colorPickerTool()}
}

// greetTool is spec.md §8 scenario 1: a single required Text prompt.
func greetTool() tool.Tool {
	return tool.Tool{
		Name:        "greet",
		Description: "Asks for a name and greets it",
		Handler: func(ctx context.Context, ec tool.ExecutionContext) (json.RawMessage, error) {
			resp, err := ec.Prompt(ctx, protocol.Prompt{
				Type:       protocol.PromptText,
				Message:    "What is your name?",
				Validation: &protocol.ValidationRules{Required: boolPtr(true)},
			})
			if err != nil {
				return nil, err
			}
			var name string
			if err := json.Unmarshal(resp.Value, &name); err != nil {
				return nil, fmt.Errorf("greet: unexpected response shape: %w", err)
			}
			return json.Marshal(map[string]string{"greeting": "Hello, " + name + "!"})
		},
	}
}

// ageGateTool is spec.md §8 scenario 2: a bounded Number prompt that
// demonstrates the validator's retry path.
func ageGateTool() tool.Tool {
	return tool.Tool{
		Name:        "age-gate",
		Description: "Verifies a caller-supplied age falls within range",
		Handler: func(ctx context.Context, ec tool.ExecutionContext) (json.RawMessage, error) {
			resp, err := ec.Prompt(ctx, protocol.Prompt{
				Type:    protocol.PromptNumber,
				Message: "Enter your age",
				Validation: &protocol.ValidationRules{
					Required: boolPtr(true),
					Min:      floatPtr(18),
					Max:      floatPtr(120),
				},
			})
			if err != nil {
				return nil, err
			}
			var age float64
			if err := json.Unmarshal(resp.Value, &age); err != nil {
				return nil, fmt.Errorf("age-gate: unexpected response shape: %w", err)
			}
			return json.Marshal(map[string]string{"message": fmt.Sprintf("Age %g verified", age)})
		},
	}
}

// colorPickerTool is spec.md §8 scenario 3: a Choice prompt that
// demonstrates the validator's suggestion list.
func colorPickerTool() tool.Tool {
	return tool.Tool{
		Name:        "color-picker",
		Description: "Asks the caller to pick one of a fixed set of colors",
		Handler: func(ctx context.Context, ec tool.ExecutionContext) (json.RawMessage, error) {
			resp, err := ec.Prompt(ctx, protocol.Prompt{
				Type:    protocol.PromptChoice,
				Message: "Pick a color",
				Choices: []protocol.Choice{
					{Value: "red", Label: "Red"},
					{Value: "blue", Label: "Blue"},
					{Value: "green", Label: "Green"},
				},
				Validation: &protocol.ValidationRules{Required: boolPtr(true)},
			})
			if err != nil {
				return nil, err
			}
			var color string
			if err := json.Unmarshal(resp.Value, &color); err != nil {
				return nil, fmt.Errorf("color-picker: unexpected response shape: %w", err)
			}
			return json.Marshal(map[string]string{"selectedColor": color})
		},
	}
}
