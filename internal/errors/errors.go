// Package errors defines the coded error taxonomy shared by every CropWise
// component. Callers import it as apperrors.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown    = "UNKNOWN"
	CodeStartup    = "STARTUP"
	CodePrediction = "PREDICTION"
	CodeRemote     = "REMOTE"
	CodeConfig     = "CONFIG"
	CodeStorage    = "STORAGE"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// StartupError aborts the process before any surface starts.
type StartupError struct {
	base Error
}

func (e *StartupError) Error() string { return e.base.Error() }
func (e *StartupError) Code() string  { return e.base.Code() }
func (e *StartupError) Unwrap() error { return e.base.Unwrap() }

func NewStartupError(message string, cause error) error {
	return &StartupError{base: Error{code: CodeStartup, message: message, err: cause}}
}

// PredictionError is returned when the classifier cannot produce a label.
type PredictionError struct {
	base Error
}

func (e *PredictionError) Error() string { return e.base.Error() }
func (e *PredictionError) Code() string  { return e.base.Code() }
func (e *PredictionError) Unwrap() error { return e.base.Unwrap() }

func NewPredictionError(message string, cause error) error {
	return &PredictionError{base: Error{code: CodePrediction, message: message, err: cause}}
}

// RemoteKind classifies a failed call to the chat-completion service.
type RemoteKind string

const (
	RemoteTransient RemoteKind = "transient"
	RemoteAuth      RemoteKind = "auth"
	RemoteQuota     RemoteKind = "quota"
)

// RemoteServiceError wraps a failed chat-completion call.
type RemoteServiceError struct {
	base      Error
	kind      RemoteKind
	status    int
	retryable bool
}

func (e *RemoteServiceError) Error() string { return e.base.Error() }
func (e *RemoteServiceError) Code() string  { return e.base.Code() }
func (e *RemoteServiceError) Unwrap() error { return e.base.Unwrap() }

// Kind reports whether the failure was transient, an auth failure or a quota failure.
func (e *RemoteServiceError) Kind() RemoteKind { return e.kind }

// Status is the HTTP status of the failed call, or 0 when there was no response.
func (e *RemoteServiceError) Status() int { return e.status }

// Retryable reports whether repeating the call may succeed.
func (e *RemoteServiceError) Retryable() bool { return e.retryable }

func NewRemoteServiceError(kind RemoteKind, status int, retryable bool, message string, cause error) error {
	return &RemoteServiceError{
		base:      Error{code: CodeRemote, message: message, err: cause},
		kind:      kind,
		status:    status,
		retryable: retryable,
	}
}

// RemoteKindOf returns the kind of the RemoteServiceError in err's chain.
// Errors that are not remote errors are reported as transient.
func RemoteKindOf(err error) RemoteKind {
	var remoteErr *RemoteServiceError
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind()
	}

	return RemoteTransient
}

// IsRetryable reports whether err carries a retryable RemoteServiceError.
func IsRetryable(err error) bool {
	var remoteErr *RemoteServiceError
	if errors.As(err, &remoteErr) {
		return remoteErr.Retryable()
	}

	return false
}

type ConfigError struct {
	base Error
}

func (e *ConfigError) Error() string { return e.base.Error() }
func (e *ConfigError) Code() string  { return e.base.Code() }
func (e *ConfigError) Unwrap() error { return e.base.Unwrap() }

func NewConfigError(message string, cause error) error {
	return &ConfigError{base: Error{code: CodeConfig, message: message, err: cause}}
}

type StorageError struct {
	base Error
}

func (e *StorageError) Error() string { return e.base.Error() }
func (e *StorageError) Code() string  { return e.base.Code() }
func (e *StorageError) Unwrap() error { return e.base.Unwrap() }

func NewStorageError(message string, cause error) error {
	return &StorageError{base: Error{code: CodeStorage, message: message, err: cause}}
}
