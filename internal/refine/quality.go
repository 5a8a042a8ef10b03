package refine

import (
	"fmt"
	"strings"
)

// Heuristic literals for detecting a model that echoed its instructions
// instead of producing a usable prompt. The lists cover English and Spanish
// because those are the phrasings observed in the wild; the mechanism does
// not depend on the lists being complete and new literals can be appended
// as they show up.
var bannedPhrases = []string{
	// instruction echo
	"here is the improved prompt",
	"here's the improved prompt",
	"the improved prompt is",
	"i have improved your prompt",
	"aquí está el prompt mejorado",
	"el prompt mejorado es",
	"he mejorado tu prompt",
	// role disclosure
	"as an ai language model",
	"as a language model",
	"as an ai assistant",
	"i am an ai",
	"como modelo de lenguaje",
	"soy un modelo de lenguaje",
	"soy una inteligencia artificial",
}

var metaPrefixes = []string{
	"sure!",
	"sure,",
	"certainly",
	"of course",
	"here is",
	"here's",
	"great question",
	"claro,",
	"por supuesto",
	"aquí tienes",
}

// ScanFinalText inspects the content of an already schema-valid final text
// for signs that the model answered the instructions rather than following
// them. It returns one human-readable description per detected issue; an
// empty slice means the text looks usable.
func ScanFinalText(text string) []string {
	var issues []string
	lower := strings.ToLower(text)

	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			issues = append(issues, fmt.Sprintf("final_text contains the meta phrase %q", phrase))
		}
	}

	firstLine := lower
	if nl := strings.IndexByte(firstLine, '\n'); nl != -1 {
		firstLine = firstLine[:nl]
	}
	firstLine = strings.TrimSpace(firstLine)
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(firstLine, prefix) {
			issues = append(issues, fmt.Sprintf("final_text starts with the meta prefix %q", prefix))
			break
		}
	}

	if strings.Contains(text, "?") {
		issues = append(issues, "final_text contains a question mark; questions belong in clarifying_questions")
	}

	return issues
}
