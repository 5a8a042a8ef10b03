package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func parse(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("test input is not valid JSON: %v", err)
	}
	return v
}

func TestValidateConforming(t *testing.T) {
	s := PromptSchema()
	v := parse(t, `{
		"final_text": "Do X",
		"clarifying_questions": ["What is X?"],
		"assumptions": [],
		"confidence": 0.8
	}`)
	s.Normalize(v)
	if viol := s.Validate(v); viol != nil {
		t.Fatalf("Validate() = %v, want nil", viol)
	}
}

func TestValidateFirstViolation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
	}{
		{
			name:     "not_an_object",
			input:    `["just", "an", "array"]`,
			wantPath: "root",
		},
		{
			name:     "missing_final_text",
			input:    `{"clarifying_questions": [], "assumptions": [], "confidence": 0.5}`,
			wantPath: "final_text",
		},
		{
			name:     "empty_final_text",
			input:    `{"final_text": "", "clarifying_questions": [], "assumptions": [], "confidence": 0.5}`,
			wantPath: "final_text",
		},
		{
			name:     "wrong_type",
			input:    `{"final_text": 42, "clarifying_questions": [], "assumptions": [], "confidence": 0.5}`,
			wantPath: "final_text",
		},
		{
			name:     "too_many_questions",
			input:    `{"final_text": "x", "clarifying_questions": ["a","b","c","d"], "assumptions": [], "confidence": 0.5}`,
			wantPath: "clarifying_questions",
		},
		{
			name:     "non_string_array_element",
			input:    `{"final_text": "x", "clarifying_questions": ["a", 2], "assumptions": [], "confidence": 0.5}`,
			wantPath: "clarifying_questions.1",
		},
		{
			name:     "unknown_key",
			input:    `{"final_text": "x", "clarifying_questions": [], "assumptions": [], "confidence": 0.5, "extra": true}`,
			wantPath: "extra",
		},
		{
			// final_text is checked before the unknown key: declared fields
			// run in schema order, unknowns last.
			name:     "field_violation_before_unknown_key",
			input:    `{"final_text": "", "clarifying_questions": [], "assumptions": [], "confidence": 0.5, "extra": true}`,
			wantPath: "final_text",
		},
	}

	s := PromptSchema()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parse(t, tt.input)
			s.Normalize(v)
			viol := s.Validate(v)
			if viol == nil {
				t.Fatal("Validate() = nil, want violation")
			}
			if viol.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q (message: %s)", viol.Path, tt.wantPath, viol.Message)
			}
		})
	}
}

func TestConfidenceNormalization(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"fraction_passes_through", 0.72, 0.72},
		{"percent_number", float64(72), 0.72},
		{"percent_string", "72%", 0.72},
		{"above_percent_range_clamps", float64(150), 1.0},
		{"negative_clamps", -3.0, 0.0},
		{"plain_numeric_string", "85", 0.85},
	}

	s := PromptSchema()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := map[string]any{
				"final_text":           "x",
				"clarifying_questions": []any{},
				"assumptions":          []any{},
				"confidence":           tt.input,
			}
			s.Normalize(v)
			got, ok := v["confidence"].(float64)
			if !ok {
				t.Fatalf("confidence is %T, want float64", v["confidence"])
			}
			if got != tt.want {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
			if viol := s.Validate(v); viol != nil {
				t.Errorf("Validate() after normalize = %v, want nil", viol)
			}
		})
	}
}

func TestNullArrayCoercion(t *testing.T) {
	withNull := parse(t, `{"final_text": "x", "clarifying_questions": null, "assumptions": null, "confidence": 0.5}`)
	withEmpty := parse(t, `{"final_text": "x", "clarifying_questions": [], "assumptions": [], "confidence": 0.5}`)

	s := PromptSchema()
	s.Normalize(withNull)
	s.Normalize(withEmpty)

	if diff := cmp.Diff(withEmpty, withNull); diff != "" {
		t.Errorf("null and [] normalize differently (-empty +null):\n%s", diff)
	}
	if viol := s.Validate(withNull); viol != nil {
		t.Errorf("Validate(null-coerced) = %v, want nil", viol)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	v := parse(t, `{"final_text": "x", "clarifying_questions": null, "assumptions": [], "confidence": 85}`)
	s := PromptSchema()

	s.Normalize(v)
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	first := parse(t, string(data))
	s.Normalize(v)

	if diff := cmp.Diff(first, v); diff != "" {
		t.Errorf("second Normalize changed the value:\n%s", diff)
	}
}

func TestDecodeImproved(t *testing.T) {
	v := parse(t, `{"final_text": "Do X", "clarifying_questions": null, "assumptions": [], "confidence": 85}`)
	s := PromptSchema()
	s.Normalize(v)
	if viol := s.Validate(v); viol != nil {
		t.Fatalf("Validate() = %v", viol)
	}

	got, err := DecodeImproved(v)
	if err != nil {
		t.Fatalf("DecodeImproved() error: %v", err)
	}
	want := &Improved{
		FinalText:           "Do X",
		ClarifyingQuestions: []string{},
		Assumptions:         []string{},
		Confidence:          0.85,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeImproved() mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribeListsEveryField(t *testing.T) {
	desc := PromptSchema().Describe()
	for _, field := range []string{"final_text", "clarifying_questions", "assumptions", "confidence"} {
		if !strings.Contains(desc, field) {
			t.Errorf("Describe() missing field %q:\n%s", field, desc)
		}
	}
}
