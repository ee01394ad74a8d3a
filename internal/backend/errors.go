package backend

import (
	"errors"
	"net/http"
)

// ErrNotFound is returned by a Store for a key it does not hold.
var ErrNotFound = errors.New("artifact not found")

// Error is a failed backend operation. Status is the HTTP status the server
// answers with; Message is shown to the user.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// UserMessage returns Message without the underlying cause.
func (e *Error) UserMessage() string { return e.Message }

func (e *Error) Unwrap() error {
	return e.Err
}

func badRequest(msg string) error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func notFound(msg string) error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

func internal(msg string, err error) error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) && be.Status != 0 {
		return be.Status
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
