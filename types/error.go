package types

import "fmt"

// FailureKind is the stable error taxonomy shared by upstream clients, the
// orchestrator, and the rate/quota gate.
type FailureKind string

const (
	FailureValidation   FailureKind = "VALIDATION"
	FailureUnauthorized FailureKind = "UNAUTHORIZED"
	FailureRateLimited  FailureKind = "RATE_LIMITED"
	FailureNetwork      FailureKind = "NETWORK"
	FailureProtocol     FailureKind = "PROTOCOL"
	FailureNotFound     FailureKind = "NOT_FOUND"
	FailureTimeout      FailureKind = "TIMEOUT"
	FailureInternal     FailureKind = "INTERNAL"
)

// severity ranks failure kinds for picking the "worst" error across a set of
// upstream clients, per the propagation policy: Auth > RateLimited > Network > Protocol.
var severity = map[FailureKind]int{
	FailureUnauthorized: 4,
	FailureRateLimited:  3,
	FailureNetwork:      2,
	FailureProtocol:     1,
	FailureValidation:   0,
	FailureNotFound:     0,
	FailureTimeout:      0,
	FailureInternal:     0,
}

// SearchError is the structured error type returned by upstream clients,
// the orchestrator, and the rate/quota gate.
type SearchError struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
	Client    string      `json:"client,omitempty"`
	Cause     error       `json:"-"`
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SearchError with the given kind and message.
func NewError(kind FailureKind, message string) *SearchError {
	return &SearchError{Kind: kind, Message: message}
}

// WithCause attaches an underlying cause.
func (e *SearchError) WithCause(cause error) *SearchError {
	e.Cause = cause
	return e
}

// WithRetryable marks the error retryable or not.
func (e *SearchError) WithRetryable(retryable bool) *SearchError {
	e.Retryable = retryable
	return e
}

// WithClient tags the error with the upstream client name that produced it.
func (e *SearchError) WithClient(client string) *SearchError {
	e.Client = client
	return e
}

// IsRetryable reports whether err is a *SearchError marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*SearchError); ok {
		return e.Retryable
	}
	return false
}

// KindOf extracts the FailureKind from an error, or "" if err is not a *SearchError.
func KindOf(err error) FailureKind {
	if e, ok := err.(*SearchError); ok {
		return e.Kind
	}
	return ""
}

// WorstKind returns the most severe kind among errs, per Auth > RateLimited >
// Network > Protocol. Returns FailureInternal if errs is empty or contains no
// *SearchError.
func WorstKind(errs ...error) FailureKind {
	worst := FailureKind("")
	worstRank := -1
	for _, err := range errs {
		k := KindOf(err)
		if k == "" {
			continue
		}
		if r := severity[k]; r > worstRank {
			worstRank = r
			worst = k
		}
	}
	if worst == "" {
		return FailureInternal
	}
	return worst
}
