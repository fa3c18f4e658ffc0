package models

import "fmt"

// FetchErrorKind categorizes upstream fetch failures.
type FetchErrorKind string

const (
	FetchUnreachable FetchErrorKind = "unreachable"
	FetchBadStatus   FetchErrorKind = "bad_status"
	FetchMalformed   FetchErrorKind = "malformed_payload"
	FetchEmpty       FetchErrorKind = "empty_result"
)

// FetchError is a categorized upstream failure. Every kind is recoverable via
// the approximation path.
type FetchError struct {
	Kind   FetchErrorKind
	Source string
	Status int // HTTP status for bad_status, zero otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchBadStatus {
		return fmt.Sprintf("%s: %s (status %d)", e.Source, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Kind)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError.
func NewFetchError(kind FetchErrorKind, source string, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Err: err}
}
