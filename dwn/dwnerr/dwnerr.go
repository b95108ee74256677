// Package dwnerr defines the typed status wrapper every per-method handler
// returns.
// Low-level packages keep declaring their own errors.New sentinels (in the
// style of massifs/errors.go); this package is where those sentinels get
// classified into a caller-facing status once a handler decides the request
// has failed.
package dwnerr

import (
	"errors"
	"fmt"
)

// Status is the caller-facing reason code.
type Status int

const (
	StatusOK       Status = 200
	StatusAccepted Status = 202
	StatusBadRequest Status = 400
	StatusUnauthorized Status = 401
	StatusNotFound Status = 404
	StatusConflict Status = 409
	StatusInternal Status = 500
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAccepted:
		return "accepted"
	case StatusBadRequest:
		return "bad request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusNotFound:
		return "not found"
	case StatusConflict:
		return "conflict"
	case StatusInternal:
		return "internal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Error is a structured, status-carrying error. Reason is a short stable
// code (e.g. "MissingRole", "ScopeMismatch", "MultipleResults") used by
// tests and callers that need to branch on the exact failure kind without
// string-matching Error().
type Error struct {
	Status Status
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s", e.Status, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Status, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a dwnerr.Error.
func New(status Status, reason string, err error) *Error {
	return &Error{Status: status, Reason: reason, Err: err}
}

// BadRequest, Unauthorized, NotFound, Conflict, Internal are constructors
// for the corresponding status, given a reason code and wrapped cause.
func BadRequest(reason string, err error) *Error    { return New(StatusBadRequest, reason, err) }
func Unauthorized(reason string, err error) *Error  { return New(StatusUnauthorized, reason, err) }
func NotFound(reason string, err error) *Error      { return New(StatusNotFound, reason, err) }
func Conflict(reason string, err error) *Error      { return New(StatusConflict, reason, err) }
func Internal(reason string, err error) *Error      { return New(StatusInternal, reason, err) }

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
