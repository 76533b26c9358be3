package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies backend API failures so callers can tell "your request
// was rejected" apart from "the service is down".
type ErrorKind string

const (
	// KindRejected covers 4xx responses: the backend understood the request
	// and refused it (invalid token, missing document, bad input).
	KindRejected ErrorKind = "rejected"
	// KindServer covers 5xx responses.
	KindServer ErrorKind = "server"
	// KindUnreachable covers transport-level failures (DNS, connection refused,
	// timeouts) where no HTTP response was received.
	KindUnreachable ErrorKind = "unreachable"
)

// Error is the typed error returned for every non-2xx or failed backend call.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
}

// IsUnreachable reports whether err indicates the backend could not be reached.
func IsUnreachable(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindUnreachable
}

// IsRejected reports whether err indicates the backend refused the request.
func IsRejected(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindRejected
}

// IsUnauthorized reports whether err is a 401/403 rejection, i.e. the session
// token was not accepted.
func IsUnauthorized(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindRejected && (be.Status == 401 || be.Status == 403)
}
