package schema

import (
	"strconv"
	"strings"
)

// Normalize rewrites value in place to absorb cosmetic model quirks before
// validation runs:
//
//   - array fields present as JSON null become empty arrays ("no items" and
//     "null" mean the same thing to every model that emits them)
//   - Fraction-marked numbers arriving as percentages (72, "72%") are folded
//     into [0, 1]; out-of-range values clamp to the nearest bound
//
// Normalize is idempotent: normalizing an already-normalized value is a
// no-op, so both generation and repair attempts can run it unconditionally.
func (o *Object) Normalize(value any) {
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}

	for _, name := range o.Order {
		f := o.Fields[name]
		raw, present := obj[name]
		if !present {
			continue
		}

		switch f.Kind {
		case KindStringArray:
			if raw == nil {
				obj[name] = []any{}
			}
		case KindNumber:
			if f.Fraction {
				if n, ok := normalizeFraction(raw); ok {
					obj[name] = n
				}
			}
		}
	}
}

// normalizeFraction folds a confidence-like value into [0, 1]. Numbers in
// (1, 100] are read as percentages; values beyond the percent range clamp.
// Percentage strings ("72%") are parsed and divided before the clamp.
func normalizeFraction(raw any) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		percent := strings.HasSuffix(trimmed, "%")
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "%"))
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
		if percent {
			n = parsed / 100
		}
	default:
		return 0, false
	}

	if n > 1 && n <= 100 {
		n = n / 100
	}
	if n > 1 {
		n = 1
	}
	if n < 0 {
		n = 0
	}
	return n, true
}
