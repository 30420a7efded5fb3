package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable means the forecast API could not be reached.
	ErrUpstreamUnavailable = errors.New("forecast upstream unavailable")
	// ErrUpstreamRejected means the forecast API answered with a non-200 status.
	ErrUpstreamRejected = errors.New("forecast upstream rejected request")
	// ErrParse means the forecast payload was malformed or had an unexpected shape.
	ErrParse = errors.New("forecast payload parse failure")
	// ErrResponseTooLarge means an upstream body exceeded the read limit.
	ErrResponseTooLarge = errors.New("upstream response too large")
	// ErrValidationUnavailable means the geocoding service could not answer.
	// It is distinct from a location that simply was not found.
	ErrValidationUnavailable = errors.New("location validation unavailable")
)

const maxSnippet = 200

// StatusError carries an unexpected HTTP status code from an upstream API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ParseError describes a payload that could not be turned into records.
type ParseError struct {
	Size    int
	Snippet string
	Err     error
}

func newParseError(body []byte, err error) *ParseError {
	snippet := body
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return &ParseError{Size: len(body), Snippet: string(snippet), Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing forecast payload (%d bytes, starts %q): %v", e.Size, e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ParseError as ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
