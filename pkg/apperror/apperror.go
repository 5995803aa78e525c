package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error for transport mapping.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindBadTransition
	KindForbidden
)

// Stable error codes surfaced in API responses.
const (
	CodeNotFound          = "RESOURCE_NOT_FOUND"
	CodeValidation        = "VALIDATION_FAILED"
	CodeWrongTransmission = "WRONG_REQUEST_TRANSMISSION"
	CodeForbidden         = "ROLE_BASED_ACCESS_ERROR"
)

// Error is a domain error with a stable code and a single offending
// field. Handlers map it to an HTTP status and a details object.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Field + ": " + e.Message
}

// Details renders the field/message pair as the response details map.
func (e *Error) Details() map[string]string {
	return map[string]string{e.Field: e.Message}
}

// HTTPStatus maps the error kind to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// NotFound reports a missing resource, e.g. NotFound("meetingId", "meeting not found").
func NotFound(field, message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Field: field, Message: message}
}

// Validation reports malformed or inconsistent input.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Field: field, Message: message}
}

// BadTransition reports a state-machine action the current status does not admit.
func BadTransition(field, message string) *Error {
	return &Error{Kind: KindBadTransition, Code: CodeWrongTransmission, Field: field, Message: message}
}

// Forbidden reports an action reserved for another role, typically the host.
func Forbidden(field, message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Field: field, Message: message}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

func IsForbidden(err error) bool { return kindOf(err) == KindForbidden }

func IsValidation(err error) bool {
	k := kindOf(err)
	return k == KindValidation || k == KindBadTransition
}
