package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an Error
type Code int

const (
	// Internal is an unexpected failure inside the mapper
	Internal Code = http.StatusInternalServerError
	// NotFound indicates a document or registered schema does not exist
	NotFound Code = http.StatusNotFound
	// Validation indicates an invalid value or configuration
	Validation Code = http.StatusBadRequest
	// InvalidQuery indicates a filter or update could not be compiled
	InvalidQuery Code = http.StatusUnprocessableEntity
	// Operation indicates a failed persistence operation
	Operation Code = http.StatusBadGateway
	// NotUnique is an Operation failure caused by a unique index violation
	NotUnique Code = http.StatusConflict
)

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"-"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == 0 {
		e.Code = http.StatusOK
	}
	type view struct {
		Code     Code     `json:"code"`
		Messages []string `json:"messages"`
		Err      string   `json:"err,omitempty"`
	}
	v := view{Code: e.Code, Messages: e.Messages}
	if e.Err != nil {
		v.Err = e.Err.Error()
	}
	bits, _ := json.Marshal(v)
	return string(bits)
}

// Unwrap returns the underlying error (if any)
func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the most recent message attached to the error
func (e *Error) Message() string {
	if len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[len(e.Messages)-1]
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// New creates a new error with the given code and formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{
		Code:     0,
		Messages: nil,
		Err:      err,
	}
}

// Wrap wraps the given error and returns a new one. A nil error stays nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

// Is reports whether the error carries the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Extract(err).Code == code
}

// IsOperation reports whether the error is a persistence failure, including unique index violations
func IsOperation(err error) bool {
	return Is(err, Operation) || Is(err, NotUnique)
}
