package model

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// FetchErrorKind separates requests that can never succeed from ones that
// ran out of retry budget.
type FetchErrorKind int

const (
	FetchFatal FetchErrorKind = iota
	FetchExhausted
)

func (k FetchErrorKind) String() string {
	if k == FetchExhausted {
		return "exhausted"
	}
	return "fatal"
}

// FetchError is returned by the polite fetcher when a request cannot succeed.
type FetchError struct {
	Kind     FetchErrorKind
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s after %d attempt(s)): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrMissingRequiredField is matched by every NormalizationError.
var ErrMissingRequiredField = errors.New("missing required field")

// NormalizationError reports a raw posting that cannot become a Posting.
type NormalizationError struct {
	Site  string
	Field string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s posting: %s: %v", e.Site, e.Field, ErrMissingRequiredField)
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// ErrParseFailure marks a page body an adapter could not parse.
var ErrParseFailure = errors.New("parse failure")

// StoreError wraps a failed persistence operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
