package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidName         = fmt.Errorf("%w: site name", ErrInvalidInput)
	ErrCounterMissing      = errors.New("unique identifier counter missing")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamNotFound    = errors.New("upstream returned no results")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrEmptyInput          = errors.New("empty input")
)

// InvalidInputError reports a malformed field in caller input.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	return target == ErrInvalidName && e.Field == "name"
}

// UpstreamError reports a failed call to an external data source. A not-found
// response also matches ErrUpstreamUnavailable.
type UpstreamError struct {
	Source   string
	NotFound bool
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("%s: no results", e.Source)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamUnavailable:
		return true
	case ErrUpstreamNotFound:
		return e.NotFound
	}
	return false
}

// ConflictError reports a duplicate value for a unique field on persist.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StatusOf maps an error to an HTTP-style status code.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUpstreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
