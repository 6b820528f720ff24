package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches an ApplicationError for a missing todo.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches an ApplicationError for a rejected token.
	ErrUnauthorized = errors.New("unauthorized")
)

// NetworkError reports that a request never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ApplicationError reports that the server answered with a failure status,
// or with a body that could not be decoded.
type ApplicationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: server error (%d): %s", e.Op, e.StatusCode, e.Message)
}

// Is matches ErrNotFound and ErrUnauthorized by status code.
func (e *ApplicationError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}

// IsNotFound reports whether err is a not-found ApplicationError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsApplication reports whether err is an ApplicationError.
func IsApplication(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}
