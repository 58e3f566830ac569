package game

import (
	"errors"
	"fmt"
)

// Code classifies a game error for callers and transport mapping.
type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStateConflict      Code = "STATE_CONFLICT"
	CodeUnverifiedPlayer   Code = "UNVERIFIED_PLAYER"
	CodeTransferFailed     Code = "TRANSFER_FAILED"
	CodeTransferInProgress Code = "TRANSFER_IN_PROGRESS"
)

// Error is the domain error returned by the game core.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether the caller may re-invoke the operation unchanged.
func (e *Error) Retryable() bool {
	return e.Code == CodeTransferFailed || e.Code == CodeTransferInProgress
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrStateConflict      = &Error{Code: CodeStateConflict, Message: "state conflict"}
	ErrUnverifiedPlayer   = &Error{Code: CodeUnverifiedPlayer, Message: "player has not signed the payload"}
	ErrTransferFailed     = &Error{Code: CodeTransferFailed, Message: "token transfer failed"}
	ErrTransferInProgress = &Error{Code: CodeTransferInProgress, Message: "token transfer already in progress"}
)

// ErrMultiplicityConflict is reported by a store when a second live session for
// the same player would exist. The service recovers from it and never returns it.
var ErrMultiplicityConflict = errors.New("multiple live sessions for player")

// ErrUnchanged is returned by an UpdateSession callback to leave the session
// row as it was. UpdateSession then returns the session and no error.
var ErrUnchanged = errors.New("session unchanged")

// InvalidArgument builds a validation error.
func InvalidArgument(format string, args ...any) error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// StateConflict builds an illegal-transition error.
func StateConflict(format string, args ...any) error {
	return &Error{Code: CodeStateConflict, Message: fmt.Sprintf(format, args...)}
}

// TransferFailed wraps a transactor failure as a retryable error.
func TransferFailed(message string, cause error) error {
	return &Error{Code: CodeTransferFailed, Message: message, Cause: cause}
}

// CodeOf extracts the code of a game error, or "" for anything else.
func CodeOf(err error) Code {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Code
	}
	return ""
}
