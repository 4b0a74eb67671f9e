package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures reported by the matchmaking components.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a record that was looked up does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyInState indicates the requested transition already holds.
	// Callers treat it as an expected, non-fatal outcome.
	ErrCodeAlreadyInState ErrorCode = "ALREADY_IN_STATE"

	// ErrCodeTransientIO indicates a failure talking to the gateway, the mail
	// server or the code cache.
	ErrCodeTransientIO ErrorCode = "TRANSIENT_IO"

	// ErrCodeCorruptState indicates records that contradict each other, such
	// as a half pair or a lobby entry for a matched user.
	ErrCodeCorruptState ErrorCode = "CORRUPT_STATE"
)

// Error is a coded error with the ids of the records involved.
type Error struct {
	Code    ErrorCode
	Message string
	UserID  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.UserID != "" {
		msg += fmt.Sprintf(" (user=%s)", e.UserID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code so errors.Is(err, ErrNotFound) holds
// for any NOT_FOUND error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.UserID == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound       = &Error{Code: ErrCodeNotFound, Message: "record not found"}
	ErrAlreadyMatched = &Error{Code: ErrCodeAlreadyInState, Message: "user already has a partner"}
	ErrCorruptState   = &Error{Code: ErrCodeCorruptState, Message: "inconsistent records"}
	ErrTransient      = &Error{Code: ErrCodeTransientIO, Message: "transient I/O failure"}
)

// NotFound returns a NOT_FOUND error for a user-scoped record.
func NotFound(kind, userID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: kind + " not found", UserID: userID}
}

// AlreadyMatched returns an ALREADY_IN_STATE error for userID.
func AlreadyMatched(userID string) *Error {
	return &Error{Code: ErrCodeAlreadyInState, Message: "user already has a partner", UserID: userID}
}

// Corrupt returns a CORRUPT_STATE error describing the inconsistency.
func Corrupt(userID, format string, args ...any) *Error {
	return &Error{Code: ErrCodeCorruptState, Message: fmt.Sprintf(format, args...), UserID: userID}
}

// Transient wraps an I/O failure as TRANSIENT_IO.
func Transient(op string, err error) *Error {
	return &Error{Code: ErrCodeTransientIO, Message: op, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsAlreadyInState reports whether err is an ALREADY_IN_STATE error.
func IsAlreadyInState(err error) bool { return hasCode(err, ErrCodeAlreadyInState) }

// IsCorrupt reports whether err is a CORRUPT_STATE error.
func IsCorrupt(err error) bool { return hasCode(err, ErrCodeCorruptState) }

// IsTransient reports whether err is a TRANSIENT_IO error.
func IsTransient(err error) bool { return hasCode(err, ErrCodeTransientIO) }
