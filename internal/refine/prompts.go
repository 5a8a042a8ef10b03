package refine

import (
	"fmt"
	"strings"

	"promptforge/internal/schema"
)

// Preset selects the structural style of the improved prompt.
type Preset string

const (
	PresetBalanced   Preset = "balanced"
	PresetConcise    Preset = "concise"
	PresetStructured Preset = "structured"
)

// ParsePreset maps a caller-supplied name onto a known preset; anything
// unrecognized falls back to balanced.
func ParsePreset(s string) Preset {
	switch Preset(strings.ToLower(strings.TrimSpace(s))) {
	case PresetConcise:
		return PresetConcise
	case PresetStructured:
		return PresetStructured
	default:
		return PresetBalanced
	}
}

const systemPromptBase = `You are a prompt engineering assistant. The user gives you a rough,
possibly vague request; you rewrite it into a clear, effective prompt for a
large language model.

%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "final_text": "<the improved prompt>",
  "clarifying_questions": ["<up to 3 short questions you would need answered>"],
  "assumptions": ["<up to 5 short assumptions you made>"],
  "confidence": <0.0-1.0>
}

Rules:
- final_text must contain the improved prompt and nothing else. Never put
  questions in final_text; they belong in clarifying_questions.
- Do not add fields beyond the four listed above.
- confidence is a fraction between 0 and 1, not a percentage.`

var presetGuidance = map[Preset]string{
	PresetBalanced: `Aim for a prompt that balances brevity with completeness: state the task,
the essential context, and the expected output format.`,
	PresetConcise: `Aim for the shortest prompt that still captures the user's intent. Strip
pleasantries and redundancy; keep only what changes the model's behavior.`,
	PresetStructured: `Produce a structured prompt with explicit sections: Role, Task, Context,
Constraints, and Output format. Use short headed paragraphs.`,
}

// systemPrompt returns the generation system prompt for a preset.
func systemPrompt(preset Preset) string {
	guidance, ok := presetGuidance[preset]
	if !ok {
		guidance = presetGuidance[PresetBalanced]
	}
	return fmt.Sprintf(systemPromptBase, guidance)
}

const repairSystemPrompt = `You are a JSON repair assistant. You receive a model response that
failed validation, together with the exact validation error. Produce a
corrected JSON object that satisfies the required shape. Respond with ONLY
the JSON object: no markdown fences, no commentary, no surrounding prose.`

// repairUserPrompt embeds the failed output, the specific failure, and a
// restatement of the contract. A generic "try again" is never sent: the
// model needs to see what it got wrong.
func repairUserPrompt(raw, problem string, target *schema.Object) string {
	var sb strings.Builder
	sb.WriteString("The previous response was:\n\n")
	sb.WriteString(raw)
	sb.WriteString("\n\nIt was rejected because:\n")
	sb.WriteString(problem)
	sb.WriteString("\n\nThe required shape is:\n")
	sb.WriteString(target.Describe())
	sb.WriteString("\n\nReturn the corrected JSON object only.")
	return sb.String()
}

// qualityRepairUserPrompt embeds the accepted-but-suspect output and the
// detected content issues.
func qualityRepairUserPrompt(raw string, issues []string, target *schema.Object) string {
	var sb strings.Builder
	sb.WriteString("The previous response was:\n\n")
	sb.WriteString(raw)
	sb.WriteString("\n\nThe final_text field has these problems:\n")
	for _, issue := range issues {
		sb.WriteString("- ")
		sb.WriteString(issue)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRewrite final_text so it contains only the improved prompt itself. ")
	sb.WriteString("Move any questions into clarifying_questions.\n\nThe required shape is:\n")
	sb.WriteString(target.Describe())
	sb.WriteString("\n\nReturn the corrected JSON object only.")
	return sb.String()
}
