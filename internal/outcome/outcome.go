package outcome

import (
	"errors"
	"fmt"
)

// StatusCode mirrors the HTTP status a failure is reported with.
type StatusCode int

const (
	OK                  StatusCode = 200
	BadRequest          StatusCode = 400
	Unauthorized        StatusCode = 401
	Forbidden           StatusCode = 403
	NotFound            StatusCode = 404
	InternalServerError StatusCode = 500
)

func (s StatusCode) String() string {
	switch s {
	case OK:
		return "ok"
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case InternalServerError:
		return "internal_error"
	default:
		return fmt.Sprintf("status_%d", int(s))
	}
}

// Error is the typed failure returned across component boundaries.
type Error struct {
	Status  StatusCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status StatusCode, err error, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFoundf(format string, args ...any) *Error {
	return newError(NotFound, nil, format, args...)
}

func BadRequestf(format string, args ...any) *Error {
	return newError(BadRequest, nil, format, args...)
}

func Unauthorizedf(format string, args ...any) *Error {
	return newError(Unauthorized, nil, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newError(Forbidden, nil, format, args...)
}

// Internal wraps err as an InternalServerError carrying message.
func Internal(err error, format string, args ...any) *Error {
	return newError(InternalServerError, err, format, args...)
}

// Wrap attaches status and message to err.
func Wrap(status StatusCode, err error, format string, args ...any) *Error {
	return newError(status, err, format, args...)
}

// StatusOf reports the status a (possibly wrapped) error maps to.
func StatusOf(err error) StatusCode {
	if err == nil {
		return OK
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Status
	}
	return InternalServerError
}

// Result is the status payload returned to HTTP callers.
type Result struct {
	IsSuccess  bool       `json:"isSuccess"`
	StatusCode StatusCode `json:"statusCode"`
	Message    string     `json:"message"`
	Data       any        `json:"data,omitempty"`
}

func Success(message string, data any) Result {
	return Result{IsSuccess: true, StatusCode: OK, Message: message, Data: data}
}

// FromError converts err into a failed Result. Messages of untyped errors are
// not exposed to callers.
func FromError(err error) Result {
	if err == nil {
		return Success("Done!", nil)
	}
	var typed *Error
	if errors.As(err, &typed) {
		return Result{StatusCode: typed.Status, Message: typed.Message}
	}
	return Result{StatusCode: InternalServerError, Message: "internal error"}
}
