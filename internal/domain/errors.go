package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrInvalidInput = errors.New("invalid input")

	// Transfer precondition errors. The download manager recovers these
	// locally as no-ops; they are never surfaced to the presentation layer.
	ErrDuplicateStart         = errors.New("transfer already exists for this track")
	ErrNotFound               = errors.New("transfer not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrManagerStopped is returned by Start once the download manager
	// has shut down
	ErrManagerStopped = errors.New("download manager stopped")

	// Catalog errors
	ErrSearchSuperseded = errors.New("search superseded by a newer search")
)

// TransportError is a network or server failure reported while a
// transfer was active.
type TransportError struct {
	Err        error
	StatusCode int
}

// Error returns the error message
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("transport: HTTP %d: %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("transport: HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		return "transport: " + e.Err.Error()
	}
	return "transport failure"
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode}
}

// IsTransportFailure returns true if the error came from the transport
func IsTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StorageError is a failure to persist received bytes locally.
type StorageError struct {
	Err  error
	Path string
}

// Error returns the error message
func (e *StorageError) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return "storage: " + e.Path + ": " + e.Err.Error()
		}
		return "storage: " + e.Path
	}
	if e.Err != nil {
		return "storage: " + e.Err.Error()
	}
	return "storage failure"
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(err error, path string) *StorageError {
	return &StorageError{Err: err, Path: path}
}

// IsStorageFailure returns true if the error came from local storage
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// FailureKind classifies a surfaced failure for display
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsStorageFailure(err):
		return "storage"
	case IsTransportFailure(err):
		return "transport"
	default:
		return "unknown"
	}
}
