package boundres

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	// ErrEmptyResponse is returned by a fetcher when the remote call succeeded without a payload.
	// The mediator skips the save step and reloads the cache.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMissingHook is returned by New when a required Config hook is nil.
	ErrMissingHook = errors.New("missing mediator hook")

	// ErrCacheClosed is reported when the cache stream ends before emitting its first value.
	ErrCacheClosed = errors.New("cache stream closed")

	// ErrInvalidPoolSize is returned when an executor pool is created with a non-positive size.
	ErrInvalidPoolSize = errors.New("pool size must be greater than 0")

	// ErrNotTerminal is returned by Subscription.Wait when the stream ends before a terminal state.
	ErrNotTerminal = errors.New("subscription ended before a terminal state")
)

// APIError is the failure side of a remote call: the status code and the service message.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the service message, falling back to the status text.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}

	return "status " + strconv.Itoa(e.StatusCode)
}
