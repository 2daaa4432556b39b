// Package apperr classifies failures so handlers and the pipeline can
// decide between rejecting a request and persisting an error state.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation_failed"
	KindExternalCall Kind = "external_call_failed"
	KindAssembly     Kind = "assembly_failed"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Errorf(format, args...))
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Errorf(format, args...))
}

func External(format string, args ...interface{}) *Error {
	return New(KindExternalCall, fmt.Errorf(format, args...))
}

func Assembly(format string, args ...interface{}) *Error {
	return New(KindAssembly, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindExternalCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
