package schema

import (
	"encoding/json"
	"fmt"
)

// Improved is the validated shape of a prompt-improvement response.
type Improved struct {
	FinalText           string   `json:"final_text"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
	Assumptions         []string `json:"assumptions"`
	Confidence          float64  `json:"confidence"`
}

// PromptSchema declares the shape every backend response must conform to:
// a non-empty final text, bounded question/assumption lists, and a
// confidence fraction. Extra top-level keys are rejected.
func PromptSchema() *Object {
	zero, one := 0.0, 1.0
	return &Object{
		Order: []string{"final_text", "clarifying_questions", "assumptions", "confidence"},
		Fields: map[string]Field{
			"final_text":           {Kind: KindString, Required: true, NonEmpty: true},
			"clarifying_questions": {Kind: KindStringArray, Required: true, MaxItems: 3},
			"assumptions":          {Kind: KindStringArray, Required: true, MaxItems: 5},
			"confidence":           {Kind: KindNumber, Required: true, Fraction: true, Min: &zero, Max: &one},
		},
	}
}

// DecodeImproved converts a validated generic value into the typed result.
// It must only be called after Normalize and Validate have passed.
func DecodeImproved(value any) (*Improved, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("re-encode validated value: %w", err)
	}
	var out Improved
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode validated value: %w", err)
	}
	if out.ClarifyingQuestions == nil {
		out.ClarifyingQuestions = []string{}
	}
	if out.Assumptions == nil {
		out.Assumptions = []string{}
	}
	return &out, nil
}
