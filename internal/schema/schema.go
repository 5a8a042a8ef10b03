// Package schema validates parsed LLM output against a declared shape and
// normalizes the value quirks models are known for (percent-style confidence,
// null instead of empty arrays).
package schema

import (
	"fmt"
	"sort"
)

// Kind is the expected JSON type of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindStringArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindStringArray:
		return "array of strings"
	default:
		return "unknown"
	}
}

// Field declares the constraints for one object field.
type Field struct {
	Kind     Kind
	Required bool

	// NonEmpty rejects blank strings (KindString only).
	NonEmpty bool

	// MaxItems bounds array length; 0 means unbounded (KindStringArray only).
	MaxItems int

	// Min and Max bound numeric values after normalization (KindNumber only).
	Min, Max *float64

	// Fraction marks a number that models report inconsistently as either a
	// fraction or a percentage; Normalize folds it into [0, 1].
	Fraction bool
}

// Object is a declarative schema for a flat JSON object. Unknown top-level
// keys are violations.
type Object struct {
	// Order fixes the traversal order so the "first violation" is
	// deterministic.
	Order  []string
	Fields map[string]Field
}

// Violation reports the first constraint failure found. Path is dot-joined
// for nested positions; a failure of the value as a whole uses "root".
type Violation struct {
	Path    string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks value against the schema and returns the first violation,
// or nil when the value conforms. It assumes Normalize has already run; raw
// model output should always be normalized first.
func (o *Object) Validate(value any) *Violation {
	obj, ok := value.(map[string]any)
	if !ok {
		return &Violation{Path: "root", Message: fmt.Sprintf("expected a JSON object, got %s", typeName(value))}
	}

	for _, name := range o.Order {
		f := o.Fields[name]
		raw, present := obj[name]
		if !present {
			if f.Required {
				return &Violation{Path: name, Message: "required field is missing"}
			}
			continue
		}
		if v := validateField(name, f, raw); v != nil {
			return v
		}
	}

	// Unknown keys, in sorted order for a stable first violation.
	var extra []string
	for key := range obj {
		if _, known := o.Fields[key]; !known {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &Violation{Path: extra[0], Message: "unknown field is not permitted"}
	}

	return nil
}

func validateField(name string, f Field, raw any) *Violation {
	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return &Violation{Path: name, Message: fmt.Sprintf("expected string, got %s", typeName(raw))}
		}
		if f.NonEmpty && s == "" {
			return &Violation{Path: name, Message: "must not be empty"}
		}

	case KindNumber:
		n, ok := toFloat(raw)
		if !ok {
			return &Violation{Path: name, Message: fmt.Sprintf("expected number, got %s", typeName(raw))}
		}
		if f.Min != nil && n < *f.Min {
			return &Violation{Path: name, Message: fmt.Sprintf("%v is below minimum %v", n, *f.Min)}
		}
		if f.Max != nil && n > *f.Max {
			return &Violation{Path: name, Message: fmt.Sprintf("%v is above maximum %v", n, *f.Max)}
		}

	case KindStringArray:
		items, ok := raw.([]any)
		if !ok {
			return &Violation{Path: name, Message: fmt.Sprintf("expected array, got %s", typeName(raw))}
		}
		if f.MaxItems > 0 && len(items) > f.MaxItems {
			return &Violation{Path: name, Message: fmt.Sprintf("has %d items, maximum is %d", len(items), f.MaxItems)}
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return &Violation{
					Path:    fmt.Sprintf("%s.%d", name, i),
					Message: fmt.Sprintf("expected string, got %s", typeName(item)),
				}
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Describe renders the required shape as prompt-embeddable text, used by the
// repair call to restate the contract.
func (o *Object) Describe() string {
	out := ""
	for _, name := range o.Order {
		f := o.Fields[name]
		req := "optional"
		if f.Required {
			req = "required"
		}
		line := fmt.Sprintf("- %q: %s (%s)", name, f.Kind, req)
		switch {
		case f.Kind == KindStringArray && f.MaxItems > 0:
			line += fmt.Sprintf(", at most %d items", f.MaxItems)
		case f.Kind == KindNumber && f.Min != nil && f.Max != nil:
			line += fmt.Sprintf(", between %v and %v", *f.Min, *f.Max)
		case f.Kind == KindString && f.NonEmpty:
			line += ", must not be empty"
		}
		out += line + "\n"
	}
	out += "No other fields are allowed."
	return out
}
