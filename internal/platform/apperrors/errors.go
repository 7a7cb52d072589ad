// Package apperrors holds the sentinel errors the gateway checks with
// errors.Is to decide an HTTP status code, per the error kinds enumerated
// for the dispatch/registry/gateway boundary.
package apperrors

import "errors"

var (
	// ErrNoRoute means no route is registered for {method, path}.
	ErrNoRoute = errors.New("no route registered")
	// ErrNoWorker means the route exists but has no available worker.
	ErrNoWorker = errors.New("no available worker for route")
	// ErrTimeout means wait-for-result exceeded the route's timeout.
	ErrTimeout = errors.New("timed out waiting for worker result")
	// ErrStoreUnavailable wraps a transient failure from the shared store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMalformedResult means the gateway could not deserialize the
	// worker's published payload.
	ErrMalformedResult = errors.New("malformed job result")
	// ErrLockNotAcquired is returned by mutex.WithLock when the try-lock
	// fails; the protected function is never invoked.
	ErrLockNotAcquired = errors.New("distributed lock not acquired")
	// ErrNotOwner means the caller does not hold the lock it is trying to
	// mutate. mutex.Release and mutex.Extend report that case as
	// (false, nil) and do not return this error.
	ErrNotOwner = errors.New("not the lock owner")
)

// Error is a status-carrying error used at the HTTP boundary, mirroring how
// the gateway's administrative handlers report a code alongside a message.
type Error struct {
	Status int
	Code   string
	Err    error
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
