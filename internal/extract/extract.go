// Package extract recovers a JSON object embedded in freeform LLM output.
// Models wrap JSON in markdown fences, custom tags, or surrounding prose;
// Extract tries each wrapper in a fixed priority order and falls back to a
// bare brace-balanced scan.
package extract

import "strings"

// Method identifies which strategy located the JSON candidate.
type Method string

const (
	MethodFence     Method = "fenced-block"
	MethodTag       Method = "tagged-block"
	MethodBraceScan Method = "brace-scan"
)

// Outcome is the result of an extraction attempt. A zero Outcome means no
// candidate object was found.
type Outcome struct {
	JSON   string
	Method Method
}

// Found reports whether a candidate was located.
func (o Outcome) Found() bool { return o.JSON != "" }

// Extract locates the first complete JSON object in text.
//
// Strategies, in priority order:
//  1. interior of a triple-backtick fenced block (optional language tag)
//  2. interior of a <json>...</json> tag pair
//  3. brace-balanced scan over the whole text
//
// Fences are checked first so that stray braces in prose preceding the real
// fenced payload cannot win.
func Extract(text string) Outcome {
	if inner, ok := fencedBlock(text); ok {
		if span, ok := braceScan(inner); ok {
			return Outcome{JSON: span, Method: MethodFence}
		}
	}
	if inner, ok := taggedBlock(text); ok {
		if span, ok := braceScan(inner); ok {
			return Outcome{JSON: span, Method: MethodTag}
		}
	}
	if span, ok := braceScan(text); ok {
		return Outcome{JSON: span, Method: MethodBraceScan}
	}
	return Outcome{}
}

// fencedBlock returns the interior of the first complete ``` fenced block.
// A language tag after the opening fence is skipped. An unclosed fence is
// treated as no fence at all.
func fencedBlock(text string) (string, bool) {
	open := strings.Index(text, "```")
	if open == -1 {
		return "", false
	}
	rest := text[open+3:]

	// Skip the optional language tag up to the end of the opening line.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if !strings.Contains(firstLine, "```") && isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}

	close := strings.Index(rest, "```")
	if close == -1 {
		return "", false
	}
	return rest[:close], true
}

// isLanguageTag reports whether s looks like a fence language tag
// ("json", "JSON", "javascript", ...) rather than block content.
func isLanguageTag(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if !(b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9') {
			return false
		}
	}
	return true
}

// taggedBlock returns the interior of the first <json>...</json> pair.
func taggedBlock(text string) (string, bool) {
	const openTag, closeTag = "<json>", "</json>"
	open := strings.Index(text, openTag)
	if open == -1 {
		return "", false
	}
	rest := text[open+len(openTag):]
	close := strings.Index(rest, closeTag)
	if close == -1 {
		return "", false
	}
	return rest[:close], true
}

// braceScan finds the first balanced top-level JSON object span in s.
// It is a byte-level state machine tracking brace depth, whether the cursor
// is inside a quoted string, and escape sequences (so an escaped quote or
// brace inside a string does not terminate the object early).
//
// Iterating bytes is safe for the sensitive delimiters ({, }, ", \) because
// UTF-8 guarantees ASCII bytes never occur inside a multi-byte sequence.
func braceScan(s string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
