// Package apperr defines the typed errors shared across Driftmark layers.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. The remote client maps API
// responses onto these; handler layers map them onto HTTP codes.
var (
	// ErrAuth means a bad or missing credential.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound means the requested path or resource is absent.
	ErrNotFound = errors.New("not found")
	// ErrRevisionConflict means a write or delete carried a stale revision:
	// another writer moved the file since it was last read.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrRepoExists means a repository create hit a taken name.
	ErrRepoExists = errors.New("repository already exists")
	// ErrAlreadyExists means a local file name is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNetwork means a transport-level failure.
	ErrNetwork = errors.New("network failure")
	// ErrValidation means malformed local input.
	ErrValidation = errors.New("invalid input")
	// ErrNotConnected means a remote operation was attempted without an
	// active connection.
	ErrNotConnected = errors.New("not connected")
	// ErrBusy means a sync is already in flight.
	ErrBusy = errors.New("sync in progress")
)

// RemoteError wraps a remote API failure with its HTTP status.
type RemoteError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Remote builds a RemoteError around a sentinel.
func Remote(op string, status int, sentinel error) *RemoteError {
	return &RemoteError{Op: op, StatusCode: status, Err: sentinel}
}
