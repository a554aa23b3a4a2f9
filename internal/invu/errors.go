package invu

import (
	"errors"
	"fmt"
)

var (
	ErrAuth           = errors.New("upstream rejected credential")
	ErrFormat         = errors.New("upstream returned non-JSON body")
	ErrTimeout        = errors.New("upstream unreachable or timed out")
	ErrUpstreamStatus = errors.New("upstream returned error status")
)

// StatusError carries the upstream HTTP status for errors that came from a
// response. It unwraps to one of the sentinels above.
type StatusError struct {
	Kind   error
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d from %s", e.Kind, e.Status, e.URL)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
