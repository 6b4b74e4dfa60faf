package upstream

import (
	"errors"
	"fmt"
)

// Common errors returned by the retry layer.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Class partitions failures by how the proxy must react to them.
type Class string

const (
	// ClassTransient covers 429, 5xx and transport timeouts. Retried,
	// surfaced as 503 when the budget runs out.
	ClassTransient Class = "transient"

	// ClassInvalidInput is a locally rejected request parameter. Never
	// reaches the upstream, never retried.
	ClassInvalidInput Class = "invalid_input"

	// ClassInvalidLocation means the upstream rejected the region
	// itself. Carries the upstream's explanatory detail, never retried.
	ClassInvalidLocation Class = "invalid_location"

	// ClassParse marks a contract mismatch with the upstream payload
	// (malformed JSON or an unparseable version string). Not retried.
	ClassParse Class = "parse"

	// ClassCredential means no usable token was available at attempt
	// time. Retried within the same budget; the token may rotate
	// mid-sequence.
	ClassCredential Class = "credential"

	// ClassNetwork is a non-timeout transport failure. Not retried.
	ClassNetwork Class = "network"

	// ClassUpstream is any other non-2xx response (auth failures,
	// malformed requests). Not retried.
	ClassUpstream Class = "upstream"
)

// Error is a classified upstream failure.
type Error struct {
	Class      Class
	StatusCode int    // upstream HTTP status; 0 for transport or local errors
	Message    string
	Detail     string // upstream-provided explanation (invalid location)
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf extracts the classification from an error chain. Returns ""
// for unclassified errors.
func ClassOf(err error) Class {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class
	}
	return ""
}

// Retryable reports whether an error is worth another attempt. Only
// transient upstream conditions and a momentarily missing token qualify;
// everything else cannot succeed by repetition.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassCredential:
		return true
	default:
		return false
	}
}
