package backend

import (
	"errors"
	"fmt"
	"time"
)

// CallError wraps a failed backend call with enough context for downstream
// logging to distinguish "backend never responded" from "backend returned an
// error". Timeout errors carry the operation name and the deadline that
// expired; all others carry the elapsed time and the original cause.
type CallError struct {
	Op       string
	Deadline time.Duration
	Elapsed  time.Duration
	Timeout  bool
	Err      error
}

func (e *CallError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: backend did not respond within %s", e.Op, e.Deadline)
	}
	return fmt.Sprintf("%s: backend call failed after %s: %v", e.Op, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a deadline-expiry call failure.
func IsTimeout(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Timeout
}
