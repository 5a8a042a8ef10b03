package refine

import (
	"time"

	"promptforge/internal/backend"
	"promptforge/internal/extract"
	"promptforge/internal/schema"
)

// Reason classifies a terminal failure. The caller uses it to decide
// between a retry affordance and a hard error message.
type Reason string

const (
	ReasonTimeout        Reason = "timeout"
	ReasonInvalidJSON    Reason = "invalid-json"
	ReasonSchemaMismatch Reason = "schema-mismatch"
	ReasonUnknown        Reason = "unknown"
)

// AttemptRecord captures what happened during one of the at most two
// backend calls of a request.
type AttemptRecord struct {
	Attempt        int            `json:"attempt"`
	UsedExtraction bool           `json:"used_extraction"`
	UsedRepair     bool           `json:"used_repair"`
	Method         extract.Method `json:"extraction_method,omitempty"`
	Elapsed        time.Duration  `json:"elapsed"`
}

// Result is the terminal outcome of one logical request. It is always
// returned, success or failure; transport and validation errors never
// escape as exceptions past the orchestrator.
type Result struct {
	RequestID string           `json:"request_id"`
	Route     backend.Route    `json:"backend"`
	Improved  *schema.Improved `json:"improved,omitempty"`
	Attempts  []AttemptRecord  `json:"attempts"`
	Reason    Reason           `json:"reason,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// OK reports terminal success.
func (r *Result) OK() bool { return r.Improved != nil }

// Retryable reports whether the failure is worth presenting with a retry
// affordance: the backend not answering (timeout) or answering garbage
// (invalid-json) may well succeed on a second request, while a schema
// mismatch already survived a repair attempt.
func (r *Result) Retryable() bool {
	return r.Reason == ReasonTimeout || r.Reason == ReasonInvalidJSON
}

// UsedExtraction reports whether any attempt needed the extractor.
func (r *Result) UsedExtraction() bool {
	for _, a := range r.Attempts {
		if a.UsedExtraction {
			return true
		}
	}
	return false
}

// UsedRepair reports whether a repair call was issued.
func (r *Result) UsedRepair() bool {
	for _, a := range r.Attempts {
		if a.UsedRepair {
			return true
		}
	}
	return false
}
