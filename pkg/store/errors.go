package store

import (
	"errors"
	"io/fs"
	"syscall"
)

// StoreError represents a domain error from store operations.
//
// These are filesystem level outcomes (entry not found, directory not empty,
// etc.) that the protocol layer reports to the client as an ERROR response.
// Anything the store cannot classify is reported as ErrIOError.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the absolute path the operation was applied to
	Path string

	// Err is the underlying filesystem error, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the entry or one of its parents does not exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates an entry with that name already exists
	ErrAlreadyExists

	// ErrNotEmpty indicates a directory is not empty (cannot be removed)
	ErrNotEmpty

	// ErrIsDirectory indicates operation expected a file but got a directory
	ErrIsDirectory

	// ErrNotDirectory indicates operation expected a directory but got a file
	ErrNotDirectory

	// ErrPermissionDenied indicates the server process lacks permission
	ErrPermissionDenied

	// ErrIOError indicates any other failure of the underlying filesystem
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotEmpty:
		return "directory not empty"
	case ErrIsDirectory:
		return "is a directory"
	case ErrNotDirectory:
		return "not a directory"
	case ErrPermissionDenied:
		return "permission denied"
	default:
		return "I/O error"
	}
}

func newError(code ErrorCode, path string) *StoreError {
	return &StoreError{Code: code, Message: code.String(), Path: path}
}

// wrapError classifies an error returned by the underlying filesystem.
func wrapError(path string, err error) error {
	if err == nil {
		return nil
	}

	var serr *StoreError
	if errors.As(err, &serr) {
		return err
	}

	code := ErrIOError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = ErrNotFound
	case errors.Is(err, fs.ErrExist):
		code = ErrAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		code = ErrPermissionDenied
	case errors.Is(err, syscall.ENOTEMPTY):
		code = ErrNotEmpty
	case errors.Is(err, syscall.ENOTDIR):
		code = ErrNotDirectory
	case errors.Is(err, syscall.EISDIR):
		code = ErrIsDirectory
	}

	return &StoreError{Code: code, Message: code.String(), Path: path, Err: err}
}

// Code returns the ErrorCode of err, or ErrIOError if err is not a
// StoreError.
func Code(err error) ErrorCode {
	var serr *StoreError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ErrIOError
}

// IsNotFound reports whether err is a StoreError with code ErrNotFound.
func IsNotFound(err error) bool {
	var serr *StoreError
	return errors.As(err, &serr) && serr.Code == ErrNotFound
}
